package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/services/pos/internal/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

// ChangeFeed is the per-tenant realtime fan-out. *realtime.Hub implements it.
type ChangeFeed interface {
	Subscribe(ctx context.Context, tenantID, table string, cb realtime.Callback) (*realtime.Subscription, error)
	Reconnect(ctx context.Context, tenantID string) error
	States() map[string]string
	Bindings() []realtime.Binding
}

// Notification is what browsers receive for each row change.
type Notification struct {
	Table     string `json:"table"`
	EventType string `json:"event_type"`
}

// RealtimeHandler bridges tenant change events to browser websockets.
type RealtimeHandler struct {
	feed     ChangeFeed
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRealtimeHandler creates the bridge. Upgrades are accepted from
// allowedOrigins only; "*" accepts any origin.
func NewRealtimeHandler(feed ChangeFeed, allowedOrigins []string, logger *slog.Logger) *RealtimeHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &RealtimeHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger,
	}
}

// Stream handles GET /api/v1/realtime?tables=products,orders
func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	tables, err := h.tables(r.URL.Query().Get("tables"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	tenantID := tenantOf(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	send := make(chan Notification, wsSendBuffer)
	subs := make([]*realtime.Subscription, 0, len(tables))
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	forward := func(ev realtime.Event) {
		select {
		case send <- Notification{Table: ev.Table, EventType: ev.Type}:
		default:
			h.logger.Warn("realtime client too slow, dropping notification",
				slog.String("tenant_id", tenantID),
				slog.String("table", ev.Table),
			)
		}
	}
	// The tenant channel outlives this request.
	subCtx := context.WithoutCancel(r.Context())
	for _, table := range tables {
		sub, err := h.feed.Subscribe(subCtx, tenantID, table, forward)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "realtime subscribe failed",
				slog.String("tenant_id", tenantID),
				slog.String("table", table),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
				time.Now().Add(wsWriteWait))
			return
		}
		subs = append(subs, sub)
	}

	h.logger.InfoContext(r.Context(), "realtime client connected",
		slog.String("tenant_id", tenantID),
		slog.String("tables", strings.Join(tables, ",")),
	)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, send, done)

	h.logger.InfoContext(r.Context(), "realtime client disconnected", slog.String("tenant_id", tenantID))
}

// readPump discards client frames and closes done when the peer goes away.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, send <-chan Notification, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case n := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// tables parses the comma separated list; empty means every watched table.
func (h *RealtimeHandler) tables(raw string) ([]string, error) {
	bindings := h.feed.Bindings()
	if strings.TrimSpace(raw) == "" {
		out := make([]string, 0, len(bindings))
		for _, b := range bindings {
			out = append(out, b.Table)
		}
		return out, nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if !realtime.IsWatched(bindings, t) {
			return nil, apperrors.InvalidInput("unknown realtime table " + t)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// Status handles GET /api/v1/realtime/status
func (h *RealtimeHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, ok := h.feed.States()[tenantOf(r)]
	if !ok {
		state = realtime.StateDisconnected
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"state": state})
}

// Reconnect handles POST /api/v1/realtime/reconnect
func (h *RealtimeHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantOf(r)
	if err := h.feed.Reconnect(r.Context(), tenantID); err != nil {
		httputil.WriteError(w, r, apperrors.Internal(err), h.logger)
		return
	}
	h.logger.InfoContext(r.Context(), "realtime channel remounted", slog.String("tenant_id", tenantID))
	state, ok := h.feed.States()[tenantID]
	if !ok {
		state = realtime.StateDisconnected
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"state": state})
}
