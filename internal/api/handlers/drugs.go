package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/domain/catalog"
)

// DrugsHandler serves the read-only drug catalog
type DrugsHandler struct {
	repo   *catalog.Repository
	logger *zap.Logger
}

// NewDrugsHandler creates a new handler
func NewDrugsHandler(repo *catalog.Repository, logger *zap.Logger) *DrugsHandler {
	return &DrugsHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes
func (h *DrugsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

type drugView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

func toDrugView(d catalog.Drug) drugView {
	return drugView{
		ID:    d.ID,
		Name:  d.Name,
		Price: d.Price.StringFixed(2),
		Stock: d.Stock,
	}
}

// List handles GET /drugs
func (h *DrugsHandler) List(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("drug list failed", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]drugView, 0, len(drugs))
	for _, d := range drugs {
		views = append(views, toDrugView(d))
	}
	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /drugs/{id}
func (h *DrugsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid drug id", http.StatusBadRequest)
		return
	}

	d, ok, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("drug load failed", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "drug not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toDrugView(d))
}
