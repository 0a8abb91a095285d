package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dailyrun/internal/app"
	logx "dailyrun/pkg/logx"
)

func newResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all completion records so the action runs again today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), opts.resolveConfig(), app.WithLogger(logx.NewConsole("WARN")))
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d record(s)\n", n)
			return nil
		},
	}
}
