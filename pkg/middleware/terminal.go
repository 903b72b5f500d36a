package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/raulancona/gourmetclick/pkg/logger"
)

const (
	// TerminalHeader identifies the POS terminal (device) a request comes from.
	TerminalHeader = "X-Terminal-ID"
	// DefaultTerminal is used when a client does not identify its terminal.
	DefaultTerminal = "main"
	// StaffSessionHeader carries the PIN session token of the employee at the terminal.
	StaffSessionHeader = "X-Staff-Session"

	terminalKey contextKeyType = "terminal_id"
)

var terminalRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Terminal resolves the terminal id from X-Terminal-ID. Missing or malformed
// values fall back to DefaultTerminal.
func Terminal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TerminalHeader)
		if !terminalRe.MatchString(id) {
			id = DefaultTerminal
		}
		ctx := context.WithValue(r.Context(), terminalKey, id)
		ctx = logger.WithTerminalID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TerminalIDFromContext returns the terminal resolved by Terminal, or DefaultTerminal.
func TerminalIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(terminalKey).(string); ok && id != "" {
		return id
	}
	return DefaultTerminal
}
