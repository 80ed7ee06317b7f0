package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/runboard/runboard/internal/service"
	"github.com/runboard/runboard/internal/ui"
	"github.com/runboard/runboard/internal/ui/pages"
)

const (
	recentRunsLimit     = 10
	maxActivitiesLimit  = 1000
	defaultActivityPage = 50
)

type DashboardHandler struct {
	dashboardService *service.DashboardService
}

func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
	}
}

func (h *DashboardHandler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	rangeName := rangeParam(r)

	dashboard, err := h.dashboardService.Dashboard(rangeName)
	if err != nil {
		slog.Error("failed to build dashboard", "error", err, "range", rangeName)
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}

	recent, err := h.dashboardService.RecentRuns(recentRunsLimit)
	if err != nil {
		slog.Error("failed to load recent runs", "error", err)
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}

	ui.Render(w, r, pages.Dashboard(pages.DashboardProps{
		Dashboard: dashboard,
		Recent:    recent,
		Range:     rangeName,
	}))
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	rangeName := rangeParam(r)

	dashboard, err := h.dashboardService.Dashboard(rangeName)
	if err != nil {
		slog.Error("failed to build stats", "error", err, "range", rangeName)
		ui.JSONError(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}

	ui.JSON(w, http.StatusOK, dashboard)
}

func (h *DashboardHandler) Activities(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityPage
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			ui.JSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivitiesLimit)
	}

	runs, err := h.dashboardService.RecentRuns(limit)
	if err != nil {
		slog.Error("failed to load activities", "error", err)
		ui.JSONError(w, http.StatusInternalServerError, "internal", "failed to load activities")
		return
	}

	ui.JSON(w, http.StatusOK, runs)
}

func rangeParam(r *http.Request) string {
	rangeName := r.URL.Query().Get("range")
	if !slices.Contains(service.Ranges, rangeName) {
		return service.RangeThisMonth
	}
	return rangeName
}
