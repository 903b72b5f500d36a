// Package supabase holds the clients for the hosted backend: the Realtime
// change stream (Phoenix channels over websocket) and Storage.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultJoinTimeout       = 10 * time.Second

	writeTimeout = 10 * time.Second
)

var (
	// ErrJoinTimeout is returned by Join when the server does not acknowledge
	// the channel join in time.
	ErrJoinTimeout = errors.New("realtime: join not acknowledged")
	// ErrChannelClosed is reported when the server closes a joined channel.
	ErrChannelClosed = errors.New("realtime: channel closed by server")
)

// RealtimeConfig configures the Realtime client.
type RealtimeConfig struct {
	// URL is the project URL (https://<ref>.supabase.co) or a ws(s) endpoint.
	URL    string
	APIKey string
	// AccessToken is sent with phx_join; the service key bypasses row level
	// security so one connection can watch any tenant.
	AccessToken       string
	HeartbeatInterval time.Duration
	JoinTimeout       time.Duration
}

// Binding selects one table's changes for a channel.
type Binding struct {
	Schema string
	Table  string
	// Filter is a PostgREST style filter such as "tenant_id=eq.42".
	Filter string
	// Event is INSERT, UPDATE, DELETE or * (default).
	Event string
}

// ChangeEvent is one row change delivered on a channel.
type ChangeEvent struct {
	Schema          string
	Table           string
	Type            string
	Record          json.RawMessage
	OldRecord       json.RawMessage
	CommitTimestamp time.Time
}

// Handler receives change events on the channel's read goroutine, in arrival order.
type Handler func(ChangeEvent)

// ErrorHandler receives asynchronous channel failures after a successful join.
type ErrorHandler func(error)

// RealtimeClient opens Realtime channels. Each channel owns its own socket.
type RealtimeClient struct {
	endpoint    string
	accessToken string
	heartbeat   time.Duration
	joinTimeout time.Duration
	dialer      *websocket.Dialer
	logger      *slog.Logger
}

// NewRealtimeClient validates cfg and derives the websocket endpoint.
func NewRealtimeClient(cfg RealtimeConfig, logger *slog.Logger) (*RealtimeClient, error) {
	endpoint, err := realtimeEndpoint(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	return &RealtimeClient{
		endpoint:    endpoint,
		accessToken: cfg.AccessToken,
		heartbeat:   cfg.HeartbeatInterval,
		joinTimeout: cfg.JoinTimeout,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:      logger,
	}, nil
}

func realtimeEndpoint(raw, apiKey string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("realtime: invalid url %q", raw)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime/v1/websocket"
	}
	q := u.Query()
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Join dials a socket, joins topic with the given postgres_changes bindings and
// waits for the server to acknowledge. Events and errors are delivered to the
// handlers until Close.
func (c *RealtimeClient) Join(ctx context.Context, topic string, bindings []Binding, onEvent Handler, onError ErrorHandler) (*Channel, error) {
	if len(bindings) == 0 {
		return nil, errors.New("realtime: at least one binding is required")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	ch := &Channel{
		topic:   "realtime:" + topic,
		conn:    conn,
		onEvent: onEvent,
		onError: onError,
		logger:  c.logger.With(slog.String("topic", topic)),
		joined:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	ch.joinRef = ch.nextRef()

	go ch.readLoop()

	if err := ch.send(frame{
		Topic:   ch.topic,
		Event:   "phx_join",
		Payload: joinPayload(bindings, c.accessToken),
		Ref:     ch.joinRef,
		JoinRef: ch.joinRef,
	}); err != nil {
		ch.shutdown(false)
		return nil, fmt.Errorf("realtime: send join: %w", err)
	}

	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()

	select {
	case err := <-ch.joined:
		if err != nil {
			ch.shutdown(false)
			return nil, err
		}
	case <-timer.C:
		ch.shutdown(false)
		return nil, ErrJoinTimeout
	case <-ctx.Done():
		ch.shutdown(false)
		return nil, ctx.Err()
	}

	ch.wg.Add(1)
	go ch.heartbeatLoop(c.heartbeat)

	return ch, nil
}

func joinPayload(bindings []Binding, accessToken string) map[string]any {
	changes := make([]map[string]string, 0, len(bindings))
	for _, b := range bindings {
		schema := b.Schema
		if schema == "" {
			schema = "public"
		}
		event := b.Event
		if event == "" {
			event = "*"
		}
		change := map[string]string{"event": event, "schema": schema, "table": b.Table}
		if b.Filter != "" {
			change["filter"] = b.Filter
		}
		changes = append(changes, change)
	}

	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]bool{"ack": false, "self": false},
			"presence":         map[string]string{"key": ""},
			"postgres_changes": changes,
		},
	}
	if accessToken != "" {
		payload["access_token"] = accessToken
	}
	return payload
}

type frame struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
	JoinRef string `json:"join_ref,omitempty"`
}

// Channel is a joined Realtime channel.
type Channel struct {
	topic   string
	joinRef string
	conn    *websocket.Conn
	onEvent Handler
	onError ErrorHandler
	logger  *slog.Logger

	writeMu  sync.Mutex
	ref      atomic.Uint64
	joinOnce sync.Once
	joined   chan error

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Topic returns the full channel topic.
func (ch *Channel) Topic() string { return ch.topic }

// Close leaves the channel and closes the socket. It is safe to call more
// than once and from a Handler.
func (ch *Channel) Close() error {
	ch.shutdown(true)
	return nil
}

func (ch *Channel) shutdown(leave bool) {
	ch.closeOnce.Do(func() {
		ch.closing.Store(true)
		if leave {
			if err := ch.send(frame{Topic: ch.topic, Event: "phx_leave", Payload: struct{}{}, Ref: ch.nextRef(), JoinRef: ch.joinRef}); err != nil {
				ch.logger.Debug("realtime leave failed", slog.String("error", err.Error()))
			}
			ch.writeMu.Lock()
			_ = ch.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			ch.writeMu.Unlock()
		}
		close(ch.done)
		_ = ch.conn.Close()
	})
	ch.wg.Wait()
}

func (ch *Channel) nextRef() string {
	return strconv.FormatUint(ch.ref.Add(1), 10)
}

func (ch *Channel) send(f frame) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	_ = ch.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ch.conn.WriteJSON(f)
}

// signalJoin resolves a pending join. It reports whether the join was still pending.
func (ch *Channel) signalJoin(err error) bool {
	delivered := false
	ch.joinOnce.Do(func() {
		ch.joined <- err
		delivered = true
	})
	return delivered
}

func (ch *Channel) report(err error) {
	if ch.closing.Load() {
		return
	}
	if ch.signalJoin(err) {
		return
	}
	if ch.onError != nil {
		ch.onError(err)
	}
}

func (ch *Channel) readLoop() {
	for {
		_, msg, err := ch.conn.ReadMessage()
		if err != nil {
			ch.report(fmt.Errorf("realtime: read: %w", err))
			return
		}
		ch.handle(msg)
	}
}

func (ch *Channel) handle(msg []byte) {
	if !gjson.ValidBytes(msg) {
		ch.logger.Warn("realtime frame is not valid json", slog.Int("bytes", len(msg)))
		return
	}
	f := gjson.ParseBytes(msg)

	switch f.Get("event").String() {
	case "phx_reply":
		if f.Get("ref").String() != ch.joinRef {
			return
		}
		if status := f.Get("payload.status").String(); status != "ok" {
			ch.signalJoin(fmt.Errorf("realtime: join rejected (%s): %s", status, f.Get("payload.response").Raw))
			return
		}
		ch.signalJoin(nil)
	case "postgres_changes":
		ch.dispatch(f.Get("payload.data"))
	case "INSERT", "UPDATE", "DELETE":
		ch.dispatch(f.Get("payload"))
	case "phx_error":
		ch.report(fmt.Errorf("realtime: channel error on %s", ch.topic))
	case "phx_close":
		ch.report(ErrChannelClosed)
	case "system":
		if f.Get("payload.status").String() == "error" {
			ch.report(fmt.Errorf("realtime: %s", f.Get("payload.message").String()))
		}
	}
}

func (ch *Channel) dispatch(data gjson.Result) {
	ev, ok := ParseChange(data)
	if !ok {
		ch.logger.Warn("realtime change without table or type", slog.String("payload", data.Raw))
		return
	}
	if ch.onEvent != nil {
		ch.onEvent(ev)
	}
}

// ParseChange reads a postgres_changes data object. Table and type are required.
func ParseChange(data gjson.Result) (ChangeEvent, bool) {
	ev := ChangeEvent{
		Schema: data.Get("schema").String(),
		Table:  data.Get("table").String(),
		Type:   strings.ToUpper(data.Get("type").String()),
	}
	if ev.Table == "" || ev.Type == "" {
		return ChangeEvent{}, false
	}
	if r := data.Get("record"); r.Exists() {
		ev.Record = json.RawMessage(r.Raw)
	}
	if r := data.Get("old_record"); r.Exists() {
		ev.OldRecord = json.RawMessage(r.Raw)
	}
	if ts, err := time.Parse(time.RFC3339, data.Get("commit_timestamp").String()); err == nil {
		ev.CommitTimestamp = ts
	}
	return ev, true
}

func (ch *Channel) heartbeatLoop(every time.Duration) {
	defer ch.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ch.done:
			return
		case <-ticker.C:
			if err := ch.send(frame{Topic: "phoenix", Event: "heartbeat", Payload: struct{}{}, Ref: ch.nextRef()}); err != nil {
				ch.logger.Warn("realtime heartbeat failed", slog.String("error", err.Error()))
			}
		}
	}
}
