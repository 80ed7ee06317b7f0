package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/runboard/runboard/internal/app"
	"github.com/runboard/runboard/internal/config"
	"github.com/runboard/runboard/internal/logger"
	"github.com/runboard/runboard/internal/strava"
)

// Exit codes follow sysexits.h so schedulers can tell transient failures
// from configuration problems.
const (
	ExitUnavailable = 69 // EX_UNAVAILABLE: upstream unreachable or failing
	ExitTempFail    = 75 // EX_TEMPFAIL: rate limited, try later
	ExitNoPerm      = 77 // EX_NOPERM: credentials rejected
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps sync failures to exit codes.
func exitCode(err error) int {
	var rateErr *strava.RateLimitError
	var authErr *strava.AuthError
	var netErr *strava.NetworkError

	switch {
	case errors.As(err, &rateErr):
		return ExitTempFail
	case errors.As(err, &authErr):
		return ExitNoPerm
	case errors.As(err, &netErr):
		return ExitUnavailable
	default:
		return 1
	}
}

// newApp loads config, sets up logging to stderr and builds the app.
// Callers close the returned app.
func newApp(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	logger.Init(os.Stderr, cfg.IsDevelopment(), cfg.SentryDSN)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return a, nil
}
