package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canton7/gitlab-mr-viewer/internal/config"
)

func Config(store *config.Store) *cobra.Command {
	var (
		baseURL      string
		token        string
		pollInterval string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the stored settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("base-url") &&
				!cmd.Flags().Changed("token") &&
				!cmd.Flags().Changed("poll-interval") {
				printSettings(cmd, store.Settings())

				return nil
			}

			settings := store.Settings()
			if cmd.Flags().Changed("base-url") {
				settings.BaseURL = baseURL
			}
			if cmd.Flags().Changed("token") {
				settings.AccessToken = token
			}
			if cmd.Flags().Changed("poll-interval") {
				settings.PollInterval = pollInterval
			}

			if err := store.Update(settings); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}

			printSettings(cmd, store.Settings())

			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "GitLab instance URL")
	cmd.Flags().StringVar(&token, "token", "", "personal access token with read_api scope")
	cmd.Flags().StringVar(&pollInterval, "poll-interval", "", "refresh cadence, e.g. 30s or 2m")

	return cmd
}

func printSettings(cmd *cobra.Command, settings config.Settings) {
	fmt.Fprintf(cmd.OutOrStdout(), "base-url:      %s\n", settings.BaseURL)
	fmt.Fprintf(cmd.OutOrStdout(), "token:         %s\n", redactToken(settings.AccessToken))
	interval := settings.PollInterval
	if interval == "" {
		interval = "default"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "poll-interval: %s\n", interval)
}

func redactToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "********"
	}

	return token[:4] + "..." + token[len(token)-4:]
}
