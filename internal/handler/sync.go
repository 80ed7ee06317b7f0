package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/runboard/runboard/internal/ctxkeys"
	"github.com/runboard/runboard/internal/model"
	"github.com/runboard/runboard/internal/repository"
	"github.com/runboard/runboard/internal/service"
	"github.com/runboard/runboard/internal/strava"
	"github.com/runboard/runboard/internal/ui"
)

const syncRunsLimit = 20

type SyncHandler struct {
	syncService *service.SyncService
	syncRuns    repository.SyncRunRepository // nil without a mirror database
}

func NewSyncHandler(syncService *service.SyncService, syncRuns repository.SyncRunRepository) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		syncRuns:    syncRuns,
	}
}

type syncResponse struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Repaired   int       `json:"repaired"`
	Total      int       `json:"total"`
	Archived   string    `json:"archived,omitempty"`
	Shared     bool      `json:"shared"`
}

// Sync runs one sync. The run is detached from the request context so a
// client disconnect cannot leave the fetch half done.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	opts := service.SyncOptions{}
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			ui.JSONError(w, http.StatusBadRequest, "invalid_max", "max must be a positive integer")
			return
		}
		opts.MaxActivities = n
	}

	ctx := context.WithoutCancel(r.Context())
	result, err := h.syncService.Run(ctx, opts)
	if err != nil {
		slog.Error("sync request failed", "error", err, "request_id", ctxkeys.RequestID(r.Context()))
		writeSyncError(w, err)
		return
	}

	if isFormPost(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	ui.JSON(w, http.StatusOK, syncResponse{
		RunID:      result.RunID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Fetched:    result.Fetched,
		Added:      result.Added,
		Updated:    result.Updated,
		Skipped:    result.SkippedCount(),
		Repaired:   result.Repaired,
		Total:      result.Total,
		Archived:   result.Archived,
		Shared:     result.Shared,
	})
}

// Runs lists recent sync runs recorded in the mirror database.
func (h *SyncHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.syncRuns == nil {
		ui.JSONError(w, http.StatusNotFound, "mirror_disabled", "sync history needs a mirror database")
		return
	}

	runs, err := h.syncRuns.Recent(r.Context(), syncRunsLimit)
	if err != nil {
		slog.Error("failed to list sync runs", "error", err)
		ui.JSONError(w, http.StatusInternalServerError, "internal", "failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []*model.SyncRun{}
	}

	ui.JSON(w, http.StatusOK, runs)
}

func writeSyncError(w http.ResponseWriter, err error) {
	var rateErr *strava.RateLimitError
	var authErr *strava.AuthError
	var netErr *strava.NetworkError

	switch {
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}
		ui.JSONError(w, http.StatusTooManyRequests, "rate_limited", rateErr.Error())
	case errors.As(err, &authErr):
		ui.JSONError(w, http.StatusBadGateway, "auth", authErr.Error())
	case errors.As(err, &netErr):
		ui.JSONError(w, http.StatusBadGateway, "network", netErr.Error())
	default:
		ui.JSONError(w, http.StatusInternalServerError, "internal", "sync failed")
	}
}

func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}
