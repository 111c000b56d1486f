package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/canton7/gitlab-mr-viewer/internal/adapters/primary/tui"
	"github.com/canton7/gitlab-mr-viewer/internal/config"
	"github.com/canton7/gitlab-mr-viewer/internal/core/app"
)

func Watch(client *app.Client, store *config.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show a live dashboard of your merge requests",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWatch(client, store)
		},
	}
}

func runWatch(client *app.Client, store *config.Store) error {
	program := tea.NewProgram(tui.NewModel(client), tea.WithAltScreen())

	client.SetOnUpdate(func() {
		program.Send(tui.ClientUpdatedMsg{})
	})

	interval := store.Settings().Interval()
	if interval == 0 {
		interval = app.DefaultPollInterval
	}
	client.Start(interval)
	defer client.Stop()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}

	return nil
}
