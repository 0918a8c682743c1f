package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/iris/internal/runner"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run one command and record it as an event",
		Long: "Run one command with its output streamed live. When a daemon is recording, the\n" +
			"event joins its timeline; otherwise it is saved as a session of its own.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runner.Options{
				Stdout:  cmd.OutOrStdout(),
				Control: a.ctrl,
			}
			if !a.ctrl.DaemonRunning() {
				dir, err := a.traceDirectory()
				if err != nil {
					return err
				}
				opts.TraceDir = dir
				if arc := a.openArchive(cmd.Context()); arc != nil {
					defer arc.Close()
					opts.Archive = arc
				}
			}

			ctx, stop := notifyInterrupt(cmd.Context())
			defer stop()

			res, err := runner.Run(ctx, args, opts)
			if err != nil {
				return err
			}
			if res.TracePath != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "[iris] Session saved to %s\n", res.TracePath)
			}
			if res.ExitCode != 0 {
				return &ExitError{Code: res.ExitCode}
			}
			return nil
		},
	}
}
