package cmd

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/runboard/runboard/internal/service"
	"github.com/spf13/cobra"
)

func StatsCmd() *cobra.Command {
	var rangeName string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard metrics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(service.Ranges, rangeName) {
				return fmt.Errorf("unknown range %q, expected one of %v", rangeName, service.Ranges)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			dashboard, err := a.DashboardService.Dashboard(rangeName)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dashboard)
		},
	}

	cmd.Flags().StringVar(&rangeName, "range", service.RangeThisMonth, "summary range")
	return cmd
}
