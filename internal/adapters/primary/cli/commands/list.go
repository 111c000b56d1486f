package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canton7/gitlab-mr-viewer/internal/config"
	"github.com/canton7/gitlab-mr-viewer/internal/core/app"
	ascii "github.com/canton7/gitlab-mr-viewer/internal/format/ascii"
	"github.com/canton7/gitlab-mr-viewer/internal/log"
)

func List(client *app.Client, store *config.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print your merge requests and recent activity once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, client, store)
		},
	}
}

func runList(cmd *cobra.Command, client *app.Client, store *config.Store) error {
	if !store.Settings().Configured() {
		return errors.New("no access token configured, run \"gitlab-mr-viewer config\" first")
	}

	err := log.WithSpinner("Fetching merge requests...", func() error {
		return client.RefreshOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to fetch merge requests: %w", err)
	}

	formatted, err := ascii.FormatOverview(client.Assigned(), client.Reviewing(), client.Activities())
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), formatted)

	return nil
}
