package http

import (
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// ListOrders handles GET /api/v1/orders?status=&from=&to=&page=&per_page=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.OrderFilter{Status: r.URL.Query().Get("status"), Params: params}

	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		from, to, err := parseRange(r)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
			return
		}
		filter.From = &from
		filter.To = &to
	}

	orders, total, err := h.service.List(r.Context(), tenantOf(r), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(orders, total, params.Page, params.PerPage))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), tenantOf(r), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// UpdateStatus handles PATCH /api/v1/orders/{id}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req service.UpdateStatusInput
	if !decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), tenantOf(r), id, req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), tenantOf(r), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// rangeOrToday is parseRange answering 400 itself.
func rangeOrToday(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (time.Time, time.Time, bool) {
	from, to, err := parseRange(r)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), logger)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
