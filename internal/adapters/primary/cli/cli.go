package cli

import (
	do "github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/canton7/gitlab-mr-viewer/internal/adapters/primary/cli/commands"
	"github.com/canton7/gitlab-mr-viewer/internal/adapters/secondary/connect"
	"github.com/canton7/gitlab-mr-viewer/internal/config"
	"github.com/canton7/gitlab-mr-viewer/internal/core/app"
)

// Command creates and returns the root CLI command.
func Command(i do.Injector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:          "gitlab-mr-viewer",
		Long:         `A dashboard for the merge requests you are assigned to or reviewing.`,
		SilenceUsage: true,
	}

	client := do.MustInvoke[*app.Client](i)
	store := do.MustInvoke[*config.Store](i)

	// Instantiating the connector subscribes the poll client to the
	// settings store.
	_ = do.MustInvoke[*connect.Connector](i)

	cmd.AddCommand(
		commands.Watch(client, store),
		commands.List(client, store),
		commands.Config(store),
	)

	return cmd, nil
}
