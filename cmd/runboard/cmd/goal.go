package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func GoalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goal [km]",
		Short: "Show or set the monthly distance goal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				s, err := a.DashboardService.Settings()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Monthly goal: %g km\n", s.MonthlyGoal)
				return nil
			}

			goal, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid goal %q: %w", args[0], err)
			}
			s, err := a.DashboardService.SetMonthlyGoal(goal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Monthly goal set to %g km\n", s.MonthlyGoal)
			return nil
		},
	}
}
