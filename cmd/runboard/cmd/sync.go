package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runboard/runboard/internal/service"
	"github.com/runboard/runboard/internal/strava"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

func SyncCmd() *cobra.Command {
	var (
		maxActivities int
		ifDue         bool
		retries       uint64
		backoff       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch activities and merge them into the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if ifDue {
				s, err := a.DashboardService.Settings()
				if err != nil {
					return err
				}
				if !service.ShouldSync(s.LastUpdate, time.Now(), a.Cfg.SyncHour) {
					fmt.Fprintln(cmd.OutOrStdout(), "Sync not due yet")
					return nil
				}
			}

			result, err := runSync(cmd.Context(), a.SyncService, service.SyncOptions{MaxActivities: maxActivities}, retries, backoff)
			if err != nil {
				return &ExitError{Code: exitCode(err), Err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fetched %d, added %d, updated %d, skipped %d, total %d\n",
				result.Fetched, result.Added, result.Updated, result.SkippedCount(), result.Total)
			for _, skipped := range result.Skipped {
				fmt.Fprintf(out, "  skipped: %v\n", skipped)
			}
			if result.Repaired > 0 {
				fmt.Fprintf(out, "  %d stored fields could not be parsed and were reset\n", result.Repaired)
			}
			if result.Archived != "" {
				fmt.Fprintf(out, "  unreadable dataset archived to %s\n", result.Archived)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxActivities, "max", 0, "maximum activities to fetch (default from SYNC_MAX_ACTIVITIES)")
	cmd.Flags().BoolVar(&ifDue, "if-due", false, "only sync when the daily sync is due")
	cmd.Flags().Uint64Var(&retries, "retries", 2, "retries after a network failure")
	cmd.Flags().DurationVar(&backoff, "backoff", 5*time.Second, "initial delay between retries")
	return cmd
}

// runSync retries the whole sync on network failures only. Rate limit and
// auth errors return at once.
func runSync(ctx context.Context, s *service.SyncService, opts service.SyncOptions, retries uint64, backoff time.Duration) (*service.SyncResult, error) {
	var result *service.SyncResult

	b := retry.WithMaxRetries(retries, retry.NewExponential(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		result, err = s.Run(ctx, opts)
		var netErr *strava.NetworkError
		if errors.As(err, &netErr) {
			slog.Warn("sync failed with network error, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
