package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipcast/api/internal/apiclient"
)

type commandContext struct {
	server   string
	user     string
	interval time.Duration
}

func (c *commandContext) client() *apiclient.Client {
	return apiclient.NewClient(c.server, nil)
}

func (c *commandContext) session() apiclient.Session {
	return apiclient.Session{UserID: c.user}
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "clipctl",
		Short:         "Submit clip and playlist jobs and follow their status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultServer := os.Getenv("CLIPCAST_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:3000"
	}
	rootCmd.PersistentFlags().StringVar(&ctx.server, "server", defaultServer, "Job API base URL")
	rootCmd.PersistentFlags().StringVar(&ctx.user, "user", os.Getenv("CLIPCAST_USER"), "User id sent with submitted jobs")
	rootCmd.PersistentFlags().DurationVar(&ctx.interval, "interval", apiclient.DefaultPollInterval, "Status poll interval for --wait")

	rootCmd.AddCommand(newClipCommand(ctx))
	rootCmd.AddCommand(newPlaylistCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}
