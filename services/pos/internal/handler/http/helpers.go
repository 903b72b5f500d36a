package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/pkg/middleware"
	"github.com/raulancona/gourmetclick/pkg/validator"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// decode reads and validates a JSON body, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}

// idParam returns a path parameter that must be a UUID.
func idParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, name))
	if !ok {
		return "", false
	}
	return id.String(), true
}

func tenantOf(r *http.Request) string {
	return middleware.TenantIDFromContext(r.Context())
}

// actor is the employee of the X-Staff-Session PIN session when one is sent,
// and the signed-in user otherwise.
func actor(r *http.Request, staff *service.StaffService) (string, error) {
	token := r.Header.Get(middleware.StaffSessionHeader)
	if token == "" {
		return middleware.UserIDFromContext(r.Context()), nil
	}
	session, err := staff.GetSession(r.Context(), tenantOf(r), token)
	if err != nil {
		return "", err
	}
	return session.StaffID, nil
}

// parseRange reads from/to query parameters as RFC 3339 timestamps or
// YYYY-MM-DD dates. A date-only to includes that whole day. Both missing
// means the current UTC day.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		from, to := service.DayRange(time.Now().UTC())
		return from, to, nil
	}

	from, _, err := parseBound(q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
	}
	to, dateOnly, err := parseBound(q.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
	}
	if dateOnly {
		to = to.Add(24 * time.Hour)
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if to.IsZero() {
		to = from.Add(24 * time.Hour)
	}
	return from, to, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}
