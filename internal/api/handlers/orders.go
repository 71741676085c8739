package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/api/middleware"
	"github.com/pillwise/rx-orders/internal/domain/catalog"
	"github.com/pillwise/rx-orders/internal/domain/identity"
	"github.com/pillwise/rx-orders/internal/domain/order"
	"github.com/pillwise/rx-orders/internal/ordering"
	"github.com/pillwise/rx-orders/internal/review"
)

// OrdersHandler handles order lifecycle endpoints
type OrdersHandler struct {
	svc       *ordering.Service
	repo      *order.Repository
	drugs     *catalog.Repository
	workbench *review.Workbench
	logger    *zap.Logger
}

// NewOrdersHandler creates a new handler
func NewOrdersHandler(svc *ordering.Service, repo *order.Repository, drugs *catalog.Repository, workbench *review.Workbench, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		svc:       svc,
		repo:      repo,
		drugs:     drugs,
		workbench: workbench,
		logger:    logger,
	}
}

// Routes returns the handler routes
func (h *OrdersHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	r.Get("/", h.History)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/review", h.Review)
	return r
}

// ItemRoutes returns routes for single line-item operations
func (h *OrdersHandler) ItemRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/pay", h.Pay)
	r.Post("/{id}/refill", h.Refill)
	r.Post("/{id}/deliver", h.Deliver)
	return r
}

// SubmitRequest is the request body for submitting a prescription
type SubmitRequest struct {
	ImageFile string `json:"image_file"`
}

// SubmitResponse is the response for submitting a prescription
type SubmitResponse struct {
	OrderID   int64     `json:"order_id"`
	ItemID    int64     `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Submit handles POST /orders
func (h *OrdersHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("orders-handler")
	ctx, span := tracer.Start(ctx, "submit_prescription")
	defer span.End()

	actor, ok := middleware.GetActor(ctx)
	if !ok {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ImageFile == "" {
		jsonError(w, "image_file is required", http.StatusBadRequest)
		return
	}

	sub, err := h.svc.SubmitPrescription(ctx, actor.ID, req.ImageFile)
	if err != nil {
		h.logger.Error("submit failed", zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)))
		domainError(w, err)
		return
	}
	span.SetAttributes(attribute.Int64("order_id", sub.OrderID))

	writeJSON(w, http.StatusCreated, SubmitResponse{
		OrderID:   sub.OrderID,
		ItemID:    sub.ItemID,
		CreatedAt: time.Now().UTC(),
	})
}

type itemView struct {
	ID            int64      `json:"id"`
	DrugID        *int64     `json:"drug_id"`
	DrugName      string     `json:"drug_name,omitempty"`
	Quantity      *int       `json:"quantity"`
	Refills       int        `json:"refills"`
	Approval      string     `json:"approval"`
	DenyReason    string     `json:"deny_reason,omitempty"`
	Paid          bool       `json:"paid"`
	DateOrdered   time.Time  `json:"date_ordered"`
	DateDelivered *time.Time `json:"date_delivered,omitempty"`
	ImageFile     string     `json:"image_file,omitempty"`
}

type orderView struct {
	ID         int64      `json:"id"`
	CustomerID *int64     `json:"customer_id"`
	Total      string     `json:"total"`
	Items      []itemView `json:"items"`
}

func (h *OrdersHandler) orderView(o *order.Order, prices map[int64]catalog.Drug) orderView {
	v := orderView{
		ID:         o.ID(),
		CustomerID: o.CustomerID(),
		Items:      make([]itemView, 0, len(o.Items())),
	}
	v.Total = o.Total(func(drugID int64) (decimal.Decimal, bool) {
		d, ok := prices[drugID]
		return d.Price, ok
	}).StringFixed(2)
	for _, li := range o.Items() {
		iv := itemView{
			ID:            li.ID(),
			DrugID:        li.DrugID(),
			Quantity:      li.Quantity(),
			Refills:       li.Refills(),
			Approval:      string(li.Approval()),
			DenyReason:    li.DenyReason(),
			Paid:          li.Paid(),
			DateOrdered:   li.DateOrdered(),
			DateDelivered: li.DateDelivered(),
			ImageFile:     li.ImageFile(),
		}
		if li.DrugID() != nil {
			if d, ok := prices[*li.DrugID()]; ok {
				iv.DrugName = d.Name
			}
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

// Get handles GET /orders/{id}
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.repo.Get(ctx, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if !canSee(actor, o) {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}

	prices, err := h.drugs.PriceIndex(ctx)
	if err != nil {
		h.logger.Error("price index load failed", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, h.orderView(o, prices))
}

// History handles GET /orders
func (h *OrdersHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)

	orders, err := h.svc.History(ctx, actor.ID)
	if err != nil {
		h.logger.Error("history load failed", zap.Error(err))
		domainError(w, err)
		return
	}

	prices, err := h.drugs.PriceIndex(ctx)
	if err != nil {
		h.logger.Error("price index load failed", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, h.orderView(o, prices))
	}
	writeJSON(w, http.StatusOK, views)
}

// Review handles POST /orders/{id}/review
func (h *OrdersHandler) Review(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("orders-handler")
	ctx, span := tracer.Start(ctx, "review_order")
	defer span.End()

	actor, _ := middleware.GetActor(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid order id", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int64("order_id", id))

	var batch review.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.workbench.Decide(ctx, actor, id, batch); err != nil {
		domainError(w, err)
		return
	}

	o, err := h.repo.Get(ctx, id)
	if err != nil {
		domainError(w, err)
		return
	}
	prices, err := h.drugs.PriceIndex(ctx)
	if err != nil {
		h.logger.Error("price index load failed", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.orderView(o, prices))
}

// Pay handles POST /items/{id}/pay
func (h *OrdersHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := h.svc.SettlePayment(ctx, id); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "paid": true})
}

// Refill handles POST /items/{id}/refill
func (h *OrdersHandler) Refill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := h.svc.ConsumeRefill(ctx, id); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "refilled": true})
}

// Deliver handles POST /items/{id}/deliver. Recording fulfillment is a
// pharmacy-side action.
func (h *OrdersHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	if !actor.CanReview() {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := h.svc.MarkDelivered(ctx, id); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "delivered": true})
}

// canSee reports whether the actor may read an order. Reviewers see
// everything, customers only their own orders.
func canSee(actor identity.Actor, o *order.Order) bool {
	if actor.CanReview() {
		return true
	}
	return o.CustomerID() != nil && *o.CustomerID() == actor.ID
}
