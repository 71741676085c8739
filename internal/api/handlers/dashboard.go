package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/api/middleware"
	"github.com/pillwise/rx-orders/internal/dashboard"
)

// DashboardHandler serves workload counts for the signed-in actor
type DashboardHandler struct {
	svc    *dashboard.Service
	logger *zap.Logger
}

// NewDashboardHandler creates a new handler
func NewDashboardHandler(svc *dashboard.Service, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	return r
}

// Get handles GET /dashboard
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)

	counts, err := h.svc.ForActor(ctx, actor)
	if err != nil {
		h.logger.Error("dashboard tally failed", zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)))
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
