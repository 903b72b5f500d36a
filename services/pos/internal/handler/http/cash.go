package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// CashHandler handles the caja, expenses and the dashboard.
type CashHandler struct {
	cash      *service.CashService
	expenses  *service.ExpenseService
	dashboard *service.DashboardService
	staff     *service.StaffService
	logger    *slog.Logger
}

// NewCashHandler creates a new cash HTTP handler.
func NewCashHandler(
	cash *service.CashService,
	expenses *service.ExpenseService,
	dashboard *service.DashboardService,
	staff *service.StaffService,
	logger *slog.Logger,
) *CashHandler {
	return &CashHandler{cash: cash, expenses: expenses, dashboard: dashboard, staff: staff, logger: logger}
}

// OpenCash handles POST /api/v1/caja/open
func (h *CashHandler) OpenCash(w http.ResponseWriter, r *http.Request) {
	var req service.OpenCashInput
	if !decode(w, r, &req) {
		return
	}
	staffID, err := actor(r, h.staff)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	session, err := h.cash.Open(r.Context(), tenantOf(r), staffID, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, session)
}

// CloseCash handles POST /api/v1/caja/close
func (h *CashHandler) CloseCash(w http.ResponseWriter, r *http.Request) {
	var req service.CloseCashInput
	if !decode(w, r, &req) {
		return
	}
	staffID, err := actor(r, h.staff)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	session, err := h.cash.Close(r.Context(), tenantOf(r), staffID, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// CurrentCash handles GET /api/v1/caja/current
func (h *CashHandler) CurrentCash(w http.ResponseWriter, r *http.Request) {
	session, err := h.cash.Current(r.Context(), tenantOf(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// CashHistory handles GET /api/v1/caja/history
func (h *CashHandler) CashHistory(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	sessions, total, err := h.cash.History(r.Context(), tenantOf(r), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(sessions, total, params.Page, params.PerPage))
}

// CreateExpense handles POST /api/v1/expenses
func (h *CashHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req service.CreateExpenseInput
	if !decode(w, r, &req) {
		return
	}
	staffID, err := actor(r, h.staff)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	expense, err := h.expenses.Create(r.Context(), tenantOf(r), staffID, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, expense)
}

// ListExpenses handles GET /api/v1/expenses?from=&to=
func (h *CashHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeOrToday(w, r, h.logger)
	if !ok {
		return
	}
	expenses, err := h.expenses.List(r.Context(), tenantOf(r), from, to)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, expenses)
}

// DeleteExpense handles DELETE /api/v1/expenses/{id}
func (h *CashHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.expenses.Delete(r.Context(), tenantOf(r), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportExpenses handles GET /api/v1/expenses/export?from=&to=
func (h *CashHandler) ExportExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeOrToday(w, r, h.logger)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.expenses.ExportCSV(r.Context(), tenantOf(r), from, to, &buf); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	filename := fmt.Sprintf("gastos_%s_%s.csv", from.Format(time.DateOnly), to.Add(-time.Nanosecond).Format(time.DateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Dashboard handles GET /api/v1/dashboard?from=&to=
func (h *CashHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeOrToday(w, r, h.logger)
	if !ok {
		return
	}
	summary, err := h.dashboard.Summary(r.Context(), tenantOf(r), from, to)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, summary)
}
