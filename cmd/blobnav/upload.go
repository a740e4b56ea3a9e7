package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmcdole/blobnav/internal/batch"
	"github.com/mmcdole/blobnav/internal/loop"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <files...>",
	Short: "Upload files, one permanode per file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	files, err := batch.LocalFiles(args)
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	q := loop.NewQueue()
	b, err := env.newBrowser(q, "")
	if err != nil {
		return err
	}
	defer b.Close()

	var (
		done     bool
		outcomes []batch.Outcome[batch.UploadResult]
	)
	b.UploadFiles(files, func(out []batch.Outcome[batch.UploadResult]) {
		outcomes = out
		done = true
	})
	if err := q.RunUntil(context.Background(), func() bool { return done }); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", o.Item.File.Name, o.Err)
			continue
		}
		fmt.Fprintf(out, "✓ %s -> %s\n", o.Item.File.Name, o.Item.Permanode)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(outcomes))
	}
	return nil
}
