package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/pkg/middleware"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// CartHandler handles HTTP requests for the terminal cart.
type CartHandler struct {
	service *service.CartService
	staff   *service.StaffService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, staff *service.StaffService, logger *slog.Logger) *CartHandler {
	return &CartHandler{service: svc, staff: staff, logger: logger}
}

// UpdateQuantityRequest changes a line's quantity by Delta.
type UpdateQuantityRequest struct {
	Delta int `json:"delta" validate:"required,min=-999,max=999"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.Clear(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemInput
	if !decode(w, r, &req) {
		return
	}
	cart, err := h.service.AddItem(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart)
}

// UpdateQuantity handles PATCH /api/v1/cart/items/{lineId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !decode(w, r, &req) {
		return
	}
	cart, err := h.service.UpdateQuantity(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()),
		chi.URLParam(r, "lineId"), req.Delta)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart)
}

// RemoveItem handles DELETE /api/v1/cart/items/{lineId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.RemoveItem(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()),
		chi.URLParam(r, "lineId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart)
}

// UpdateDetails handles PUT /api/v1/cart/details
func (h *CartHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateDetailsInput
	if !decode(w, r, &req) {
		return
	}
	cart, err := h.service.UpdateDetails(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart)
}

// Checkout handles POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, err := actor(r, h.staff)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	order, err := h.service.Checkout(ctx, tenantOf(r), middleware.TerminalIDFromContext(ctx), staffID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, order)
}

// BeginEdit handles POST /api/v1/orders/{id}/edit
func (h *CartHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	err := h.service.BeginEdit(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusAccepted, map[string]string{"status": "editing", "order_id": id})
}

// requireTenant rejects tokens that carry no tenant.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenantOf(r) == "" {
			httputil.WriteError(w, r, apperrors.Forbidden("no restaurant is linked to this account"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
