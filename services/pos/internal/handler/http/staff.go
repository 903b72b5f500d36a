package http

import (
	"log/slog"
	"net/http"

	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/pkg/middleware"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// StaffHandler handles employee management and PIN sessions.
type StaffHandler struct {
	service *service.StaffService
	logger  *slog.Logger
}

// NewStaffHandler creates a new staff HTTP handler.
func NewStaffHandler(svc *service.StaffService, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{service: svc, logger: logger}
}

// VerifyPINRequest unlocks the terminal.
type VerifyPINRequest struct {
	PIN string `json:"pin" validate:"required,pin"`
}

// ListStaff handles GET /api/v1/staff
func (h *StaffHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context(), tenantOf(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, members)
}

// CreateStaff handles POST /api/v1/staff
func (h *StaffHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req service.CreateStaffInput
	if !decode(w, r, &req) {
		return
	}
	member, err := h.service.Create(r.Context(), tenantOf(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, member)
}

// UpdateStaff handles PUT /api/v1/staff/{id}
func (h *StaffHandler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req service.UpdateStaffInput
	if !decode(w, r, &req) {
		return
	}
	member, err := h.service.Update(r.Context(), tenantOf(r), id, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, member)
}

// DeleteStaff handles DELETE /api/v1/staff/{id}
func (h *StaffHandler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), tenantOf(r), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyPIN handles POST /api/v1/staff/verify-pin
func (h *StaffHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	var req VerifyPINRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.VerifyPIN(r.Context(), tenantOf(r), middleware.TerminalIDFromContext(r.Context()), req.PIN)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, session)
}

// GetSession handles GET /api/v1/staff/session
func (h *StaffHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), tenantOf(r), r.Header.Get(middleware.StaffSessionHeader))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// EndSession handles DELETE /api/v1/staff/session
func (h *StaffHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), tenantOf(r), r.Header.Get(middleware.StaffSessionHeader)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
