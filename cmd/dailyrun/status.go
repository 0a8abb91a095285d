package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dailyrun/internal/app"
	logx "dailyrun/pkg/logx"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored completion records and the next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), opts.resolveConfig(), app.WithLogger(logx.NewConsole("WARN")))
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Status(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, st app.Status) {
	fmt.Fprintf(w, "at:       %s (%s)\n", st.At, st.Timezone)
	fmt.Fprintf(w, "has run:  %v\n", st.HasRun)
	fmt.Fprintf(w, "next run: %s\n", st.NextRun.Format(time.RFC3339))
	if len(st.Records) == 0 {
		fmt.Fprintf(w, "records:  none (table %s)\n", st.Table)
		return
	}
	fmt.Fprintf(w, "records (table %s):\n", st.Table)
	for _, r := range st.Records {
		fmt.Fprintf(w, "  %s\n", r)
	}
}
