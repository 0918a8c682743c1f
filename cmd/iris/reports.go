package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/user/iris/internal/report"
	"github.com/user/iris/internal/trace"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		all   bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query> [trace-file]",
		Short: "Find events whose command or output contains a string",
		Long: "Search one trace file for events whose command or output contains the query,\n" +
			"ignoring case. With --all, search every session in the archive instead.",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			out := cmd.OutOrStdout()
			if all {
				arc, err := a.mustArchive(cmd.Context())
				if err != nil {
					return err
				}
				defer arc.Close()
				hits, err := arc.Search(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				report.Hits(out, hits)
				return nil
			}

			sess, err := trace.Load(args[1])
			if err != nil {
				return err
			}
			report.Search(out, sess, query)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "search every archived session")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum archive matches to print")
	return cmd
}

func newReplayCmd(a *app) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "replay <trace-file>",
		Short: "Print a session back as it looked at the prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("delay") {
				delay = a.cfg.ReplayDelay
			}
			out := cmd.OutOrStdout()
			color := false
			if f, ok := out.(*os.File); ok {
				color = isatty.IsTerminal(f.Fd())
			}

			ctx, stop := notifyInterrupt(cmd.Context())
			defer stop()
			if err := report.Replay(ctx, out, sess, report.ReplayOptions{Delay: delay, Color: color}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 500*time.Millisecond, "pause after each event")
	return cmd
}

func newSummaryCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <trace-file>",
		Short: "Print session statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			report.Summary(cmd.OutOrStdout(), sess)
			return nil
		},
	}
}

func newExportCmd(_ *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <trace-file>",
		Short: "Write a session as a plain-text report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			if err := report.Export(output, sess); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(sess.Events), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "report file to write")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
