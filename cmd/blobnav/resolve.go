package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmcdole/blobnav/internal/aspect"
	"github.com/mmcdole/blobnav/internal/loop"
)

var (
	resolveWidth  int
	resolveHeight int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Print the views available at a location",
	Long: `Resolve navigates to a browser location, waits for its results and prints
the aspects that can show it, followed by the active one.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().IntVar(&resolveWidth, "width", 80, "width of the rendered view")
	resolveCmd.Flags().IntVar(&resolveHeight, "height", 24, "height of the rendered view")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	q := loop.NewQueue()
	b, err := env.newBrowser(q, args[0])
	if err != nil {
		return err
	}
	defer b.Close()

	if err := settle(q, b); err != nil {
		return fmt.Errorf("waiting for results: %w", err)
	}
	// Descriptions requested by the first page
	q.RunPending()

	st := b.Snapshot()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, st.URL)
	for i, a := range st.Aspects {
		marker := " "
		if st.HasActive && i == st.Active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-10s %s\n", marker, a.Title, a.URL)
	}
	for _, e := range st.Errors {
		fmt.Fprintf(out, "! %s\n", e.Error)
	}

	if c := b.Content(aspect.Size{Width: resolveWidth, Height: resolveHeight}); c != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, c.View())
	}
	return nil
}
