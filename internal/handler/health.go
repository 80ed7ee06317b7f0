package handler

import (
	"net/http"

	"github.com/runboard/runboard/internal/ui"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ui.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
