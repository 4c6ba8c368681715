package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipcast/api/internal/apiclient"
	"github.com/clipcast/api/internal/model"
)

func newClipCommand(ctx *commandContext) *cobra.Command {
	var start, end float64
	var wait bool

	cmd := &cobra.Command{
		Use:   "clip <video-url>",
		Short: "Queue a clip of a video between --start and --end seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if end <= start {
				return errors.New("--end must be greater than --start")
			}
			jobID, err := ctx.client().SubmitClip(cmd.Context(), ctx.session(), apiclient.ClipRequest{
				SourceURL: args[0],
				Start:     start,
				End:       end,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued clip job %s (%s - %s)\n", jobID, model.FormatTimecode(start), model.FormatTimecode(end))
			if wait {
				return waitForJob(cmd, ctx, jobID)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&start, "start", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Clip end in seconds")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "playlist <playlist-url>",
		Short: "Queue an audio download of a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := ctx.client().SubmitPlaylist(cmd.Context(), ctx.session(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued playlist job %s\n", jobID)
			if wait {
				return waitForJob(cmd, ctx, jobID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status",
		Long:  "Show a job's status. A completed or failed status can only be read once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait {
				return waitForJob(cmd, ctx, args[0])
			}
			status, err := ctx.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(*status))
			return exitForStatus(status.Status)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

func waitForJob(cmd *cobra.Command, ctx *commandContext, jobID string) error {
	out := cmd.OutOrStdout()
	poller := apiclient.NewPoller(ctx.client(), ctx.interval)

	var previous model.JobStatus
	handle := poller.Start(cmd.Context(), jobID, func(s model.StatusResponse) {
		if s.Status != previous {
			fmt.Fprintf(out, "%s: %s\n", jobID, s.Status)
			previous = s.Status
		}
	})

	last, err := handle.Wait()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderStatus(*last))
	return exitForStatus(last.Status)
}

func exitForStatus(s model.JobStatus) error {
	switch s {
	case model.JobStatusFailed:
		return errors.New("job failed")
	case model.JobStatusNotFound:
		return errors.New("job not found or expired")
	default:
		return nil
	}
}
