package main

import (
	"github.com/spf13/cobra"

	"github.com/user/iris/internal/report"
)

func newSessionsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List archived sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arc, err := a.mustArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer arc.Close()

			list, err := arc.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			report.Sessions(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	return cmd
}
