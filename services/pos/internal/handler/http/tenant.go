package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 64 << 10

// TenantHandler handles the restaurant profile and its public pages.
type TenantHandler struct {
	service  *service.TenantService
	maxBytes int64
	logger   *slog.Logger
}

// NewTenantHandler creates a new tenant HTTP handler.
func NewTenantHandler(svc *service.TenantService, maxUploadBytes int64, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{service: svc, maxBytes: maxUploadBytes, logger: logger}
}

// GetProfile handles GET /api/v1/tenant
func (h *TenantHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.GetProfile(r.Context(), tenantOf(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, tenant)
}

// SaveProfile handles PUT /api/v1/tenant
func (h *TenantHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileInput
	if !decode(w, r, &req) {
		return
	}
	tenant, err := h.service.SaveProfile(r.Context(), tenantOf(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, tenant)
}

// UploadImage handles POST /api/v1/tenant/images/{kind} with a multipart
// "image" file.
func (h *TenantHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, apperrors.InvalidInput(fmt.Sprintf("image must not exceed %d bytes", h.maxBytes)), h.logger)
			return
		}
		httputil.WriteError(w, r, apperrors.InvalidInput("multipart field \"image\" is required"), h.logger)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("could not read image"), h.logger)
		return
	}

	tenant, err := h.service.UploadImage(r.Context(), tenantOf(r), chi.URLParam(r, "kind"), body)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, tenant)
}

// PublicMenu handles GET /api/v1/public/menu/{slug}
func (h *TenantHandler) PublicMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.service.GetPublicMenu(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, menu)
}

// PublicLinks handles GET /api/v1/public/links/{slug}
func (h *TenantHandler) PublicLinks(w http.ResponseWriter, r *http.Request) {
	card, err := h.service.GetLinkCard(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, card)
}
