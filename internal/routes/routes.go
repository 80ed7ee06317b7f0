package routes

import (
	"net/http"

	"github.com/runboard/runboard/internal/app"
	"github.com/runboard/runboard/internal/handler"
	"github.com/runboard/runboard/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler()
	dashboard := handler.NewDashboardHandler(app.DashboardService)
	goal := handler.NewGoalHandler(app.DashboardService)
	sync := handler.NewSyncHandler(app.SyncService, app.SyncRuns)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", health.Health)

	// Dashboard
	mux.HandleFunc("GET /{$}", dashboard.DashboardPage)

	// API
	mux.HandleFunc("GET /api/stats", dashboard.Stats)
	mux.HandleFunc("GET /api/activities", dashboard.Activities)
	mux.HandleFunc("GET /api/goal", goal.Get)
	mux.HandleFunc("POST /api/goal", goal.Update)

	// Sync (rate limited per client)
	rateLimit := middleware.RateLimit(app.SyncLimiter)
	mux.HandleFunc("POST /api/sync", rateLimit(sync.Sync))
	mux.HandleFunc("GET /api/sync/runs", sync.Runs)

	return middleware.Chain(mux,
		middleware.RequestLogging,
		middleware.Config(app.Cfg),
	)
}
