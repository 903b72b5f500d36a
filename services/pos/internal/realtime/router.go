// Package realtime fans the backend's change stream out to in-process listeners.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Router states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateError        = "error"
	StateClosed       = "closed"
)

// ErrRouterClosed is returned by SetTenant after Close.
var ErrRouterClosed = errors.New("realtime: router closed")

// Event is one row change on a watched table.
type Event struct {
	TenantID  string          `json:"tenant_id"`
	Table     string          `json:"table"`
	Type      string          `json:"event_type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
}

// Callback handles an event. It runs synchronously on the upstream's delivery
// goroutine and must not block.
type Callback func(Event)

// ChannelConfig describes the upstream channel for one tenant.
type ChannelConfig struct {
	TenantID string
	Bindings []Binding
}

// Channel is an open upstream channel.
type Channel interface {
	Close() error
}

// Upstream opens change channels. Open returns once the channel is
// acknowledged; afterwards onEvent and onError may be called from another
// goroutine until the channel is closed.
type Upstream interface {
	Open(ctx context.Context, cfg ChannelConfig, onEvent func(Event), onError func(error)) (Channel, error)
}

// Router keeps at most one upstream channel, bound to the current tenant, and
// delivers its events to the callbacks subscribed for each table. Listeners
// are independent of the channel and survive tenant changes.
type Router struct {
	upstream Upstream
	bindings []Binding
	logger   *slog.Logger

	subsMu sync.RWMutex
	subs   map[string][]*Subscription
	nextID uint64

	// connMu serializes channel lifecycle changes.
	connMu  sync.Mutex
	channel Channel
	closed  bool

	stateMu sync.RWMutex
	state   string
	tenant  string

	generation atomic.Uint64
}

// NewRouter creates a disconnected router. A nil bindings list means DefaultBindings.
func NewRouter(upstream Upstream, bindings []Binding, logger *slog.Logger) *Router {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &Router{
		upstream: upstream,
		bindings: bindings,
		logger:   logger,
		subs:     make(map[string][]*Subscription),
		state:    StateDisconnected,
	}
}

// Subscription is a callback registration. Call Unsubscribe to release it.
type Subscription struct {
	router *Router
	table  string
	id     uint64
	cb     Callback
	once   sync.Once
	// onRelease runs once after the registration is removed.
	onRelease func()
}

// Table returns the subscribed table.
func (s *Subscription) Table() string { return s.table }

// Unsubscribe removes the registration. Further calls do nothing.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.router.remove(s)
		if s.onRelease != nil {
			s.onRelease()
		}
	})
}

// Subscribe registers cb for events on table. Callbacks for a table run in
// registration order.
func (r *Router) Subscribe(table string, cb Callback) *Subscription {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	r.nextID++
	sub := &Subscription{router: r, table: table, id: r.nextID, cb: cb}
	r.subs[table] = append(r.subs[table], sub)
	return sub
}

func (r *Router) remove(sub *Subscription) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	list := r.subs[sub.table]
	for i, s := range list {
		if s.id == sub.id {
			// Copy so a dispatch holding the old slice is unaffected.
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.subs, sub.table)
			} else {
				r.subs[sub.table] = next
			}
			return
		}
	}
}

// ListenerCount returns the number of callbacks registered for table.
func (r *Router) ListenerCount(table string) int {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	return len(r.subs[table])
}

// State returns the connection state.
func (r *Router) State() string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

// Tenant returns the tenant the router is bound to, if any.
func (r *Router) Tenant() string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.tenant
}

func (r *Router) setState(state, tenant string) {
	r.stateMu.Lock()
	r.state = state
	r.tenant = tenant
	r.stateMu.Unlock()
}

// SetTenant binds the router to tenantID. The current channel, if any, is
// closed before the new one is opened; an empty id only disconnects. Setting
// the tenant that is already connected is a no-op. An open failure leaves the
// router in StateError and is not retried; it is logged and returned.
func (r *Router) SetTenant(ctx context.Context, tenantID string) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.closed {
		return ErrRouterClosed
	}

	if tenantID != "" && tenantID == r.Tenant() {
		if s := r.State(); s == StateConnected || s == StateConnecting {
			return nil
		}
	}

	r.closeChannelLocked()

	if tenantID == "" {
		r.setState(StateDisconnected, "")
		return nil
	}

	gen := r.generation.Add(1)
	r.setState(StateConnecting, tenantID)

	ch, err := r.upstream.Open(ctx, ChannelConfig{TenantID: tenantID, Bindings: r.bindings},
		func(ev Event) { r.dispatch(gen, ev) },
		func(err error) { r.channelError(gen, err) },
	)
	if err != nil {
		channelErrors.Inc()
		r.setState(StateError, tenantID)
		r.logger.ErrorContext(ctx, "realtime channel open failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("open realtime channel: %w", err)
	}

	r.channel = ch
	channelsOpen.Inc()

	if r.generation.Load() == gen && r.State() == StateConnecting {
		r.setState(StateConnected, tenantID)
	}
	r.logger.InfoContext(ctx, "realtime channel connected",
		slog.String("tenant_id", tenantID),
		slog.Int("tables", len(r.bindings)),
	)
	return nil
}

// closeChannelLocked must be called with connMu held.
func (r *Router) closeChannelLocked() {
	// Events still in flight from the old channel are dropped.
	r.generation.Add(1)
	if r.channel == nil {
		return
	}
	if err := r.channel.Close(); err != nil {
		r.logger.Warn("realtime channel close failed", slog.String("error", err.Error()))
	}
	r.channel = nil
	channelsOpen.Dec()
}

// Close tears down the channel. Subscriptions stay registered but receive
// nothing further.
func (r *Router) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.closeChannelLocked()
	r.setState(StateClosed, "")
	return nil
}

func (r *Router) channelError(gen uint64, err error) {
	if r.generation.Load() != gen {
		return
	}
	channelErrors.Inc()
	tenant := r.Tenant()
	r.setState(StateError, tenant)
	r.logger.Error("realtime channel error",
		slog.String("tenant_id", tenant),
		slog.String("error", err.Error()),
	)
}

func (r *Router) dispatch(gen uint64, ev Event) {
	if r.generation.Load() != gen {
		return
	}
	if ev.TenantID == "" {
		ev.TenantID = r.Tenant()
	}

	r.subsMu.RLock()
	subs := r.subs[ev.Table]
	r.subsMu.RUnlock()

	for _, s := range subs {
		r.invoke(s, ev)
	}
	if len(subs) > 0 {
		eventsDispatched.WithLabelValues(ev.Table).Add(float64(len(subs)))
	}
}

func (r *Router) invoke(s *Subscription, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("realtime listener panicked",
				slog.String("table", ev.Table),
				slog.Any("panic", rec),
			)
		}
	}()
	s.cb(ev)
}
