package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/iris/internal/control"
	"github.com/user/iris/internal/hub"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the running daemon's timeline live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := a.ctrl.ReadWatch()
			if err != nil {
				if errors.Is(err, control.ErrNoDaemon) {
					return errors.New("no live feed: no daemon is running or its feed is disabled")
				}
				return err
			}

			ctx, stop := notifyInterrupt(cmd.Context())
			defer stop()

			out := cmd.OutOrStdout()
			err = hub.Subscribe(ctx, url, hub.Handlers{
				OnSession: func(m hub.SessionMessage) {
					fmt.Fprintf(out, "Watching session %s on %s (started %s, %d events so far)\n",
						m.SessionID, m.Hostname, m.StartTime.Format("15:04:05"), len(m.Events))
					for _, ev := range m.Events {
						printLiveEvent(out, ev.ID, ev.ExitCode, ev.Command, ev.Output)
					}
				},
				OnEvent: func(m hub.EventMessage) {
					ev := m.Event
					printLiveEvent(out, ev.ID, ev.ExitCode, ev.Command, ev.Output)
				},
			})
			if err != nil {
				return err
			}
			if ctx.Err() == nil {
				fmt.Fprintln(out, "[iris] The daemon closed the feed.")
			}
			return nil
		},
	}
}

func printLiveEvent(w io.Writer, id, exitCode int, command, output string) {
	fmt.Fprintf(w, "#%d $ %s", id, command)
	if exitCode != 0 {
		fmt.Fprintf(w, "  (exit %d)", exitCode)
	}
	fmt.Fprintln(w)
	if out := strings.TrimRight(output, "\n"); out != "" {
		fmt.Fprintln(w, out)
	}
}
