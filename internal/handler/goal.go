package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/runboard/runboard/internal/service"
	"github.com/runboard/runboard/internal/settings"
	"github.com/runboard/runboard/internal/ui"
)

type GoalHandler struct {
	dashboardService *service.DashboardService
}

func NewGoalHandler(dashboardService *service.DashboardService) *GoalHandler {
	return &GoalHandler{
		dashboardService: dashboardService,
	}
}

type goalResponse struct {
	MonthlyGoal float64 `json:"monthly_goal"`
}

type goalRequest struct {
	MonthlyGoal float64 `json:"monthly_goal"`
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.dashboardService.Settings()
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		ui.JSONError(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}

	ui.JSON(w, http.StatusOK, goalResponse{MonthlyGoal: s.MonthlyGoal})
}

// Update accepts either a JSON body or the dashboard form. Form posts are
// redirected back to the dashboard.
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var goal float64
	if isJSON {
		var req goalRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			ui.JSONError(w, http.StatusBadRequest, "invalid_body", "body must be {\"monthly_goal\": number}")
			return
		}
		goal = req.MonthlyGoal
	} else {
		v, err := strconv.ParseFloat(r.FormValue("monthly_goal"), 64)
		if err != nil {
			http.Error(w, "Monthly goal must be a number", http.StatusBadRequest)
			return
		}
		goal = v
	}

	s, err := h.dashboardService.SetMonthlyGoal(goal)
	if errors.Is(err, settings.ErrInvalidGoal) {
		if isJSON {
			ui.JSONError(w, http.StatusBadRequest, "invalid_goal", err.Error())
			return
		}
		http.Error(w, "Monthly goal must be greater than zero", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("failed to save monthly goal", "error", err, "goal", goal)
		if isJSON {
			ui.JSONError(w, http.StatusInternalServerError, "internal", "failed to save goal")
			return
		}
		http.Error(w, "Failed to save goal", http.StatusInternalServerError)
		return
	}

	slog.Info("monthly goal updated", "goal", s.MonthlyGoal)

	if !isJSON {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	ui.JSON(w, http.StatusOK, goalResponse{MonthlyGoal: s.MonthlyGoal})
}
