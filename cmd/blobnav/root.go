package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mmcdole/blobnav/internal/adapter"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/tui"
	"github.com/mmcdole/blobnav/internal/tui/styles"
)

var (
	// configFlag points at an explicit config file
	configFlag string
	// urlFlag is the initial browser location
	urlFlag string
	// backendFlag overrides store.backend
	backendFlag string
)

var rootCmd = &cobra.Command{
	Use:   "blobnav",
	Short: "Browse a content-addressable blob store",
	Long: `blobnav is a terminal browser for a content-addressable store: search
permanodes, open blobs, and tag, group, delete or upload them.

The store is either a local bbolt directory or a remote server reached over
HTTP and websockets.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runBrowse,
}

func init() {
	rootCmd.SetVersionTemplate("blobnav version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.config/blobnav/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "store backend: local or remote")
	rootCmd.Flags().StringVar(&urlFlag, "url", "", "initial location (default: the UI root)")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	styles.SetTheme(env.cfg.UI.Theme)

	q := loop.NewQueue()
	b, err := env.newBrowser(q, urlFlag)
	if err != nil {
		return err
	}
	defer b.Close()

	var opener tui.Opener
	if env.cfg.Store.Backend == adapter.BackendRemote {
		opener = adapter.NewOpener(env.cfg.UI.OpenCommand, nil, env.logger)
	}

	p := tea.NewProgram(
		tui.NewModel(b, q, opener, env.logger),
		tea.WithAltScreen(),
	)

	env.logger.Info("starting TUI", "location", b.Snapshot().URL)
	if _, err := p.Run(); err != nil {
		env.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	env.logger.Info("shutting down")
	return nil
}
