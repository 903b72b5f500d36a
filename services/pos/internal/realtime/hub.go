package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Hub owns one Router per tenant for the multi-tenant server. A tenant's
// router is created and connected by its first subscription and closed when
// its last subscription is released.
type Hub struct {
	upstream Upstream
	bindings []Binding
	logger   *slog.Logger

	mu      sync.Mutex
	routers map[string]*Router
	refs    map[string]int
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(upstream Upstream, bindings []Binding, logger *slog.Logger) *Hub {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &Hub{
		upstream: upstream,
		bindings: bindings,
		logger:   logger,
		routers:  make(map[string]*Router),
		refs:     make(map[string]int),
	}
}

// Bindings returns the watched tables.
func (h *Hub) Bindings() []Binding { return h.bindings }

// acquire returns the tenant's router, creating it if needed, and counts one
// more subscription against it.
func (h *Hub) acquire(tenantID string) (*Router, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false, ErrRouterClosed
	}
	r, ok := h.routers[tenantID]
	if !ok {
		r = NewRouter(h.upstream, h.bindings, h.logger)
		h.routers[tenantID] = r
	}
	h.refs[tenantID]++
	return r, !ok, nil
}

// release drops one subscription of r and closes r once none are left.
func (h *Hub) release(tenantID string, r *Router) {
	h.mu.Lock()
	if h.routers[tenantID] != r {
		h.mu.Unlock()
		return
	}
	h.refs[tenantID]--
	if h.refs[tenantID] > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.routers, tenantID)
	delete(h.refs, tenantID)
	h.mu.Unlock()

	_ = r.Close()
	h.logger.Debug("realtime router released", slog.String("tenant_id", tenantID))
}

// Subscribe registers cb for table events of tenantID, connecting the
// tenant's channel the first time. A failed connection is logged by the
// router and not retried; the subscription stays registered.
func (h *Hub) Subscribe(ctx context.Context, tenantID, table string, cb Callback) (*Subscription, error) {
	r, created, err := h.acquire(tenantID)
	if err != nil {
		return nil, err
	}
	sub := r.Subscribe(table, cb)
	sub.onRelease = func() { h.release(tenantID, r) }
	if created {
		_ = r.SetTenant(ctx, tenantID)
	}
	return sub, nil
}

// Reconnect reopens the channel of a tenant whose router is in StateError.
// A tenant without subscribers has nothing to reopen.
func (h *Hub) Reconnect(ctx context.Context, tenantID string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrRouterClosed
	}
	r, ok := h.routers[tenantID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return r.SetTenant(ctx, tenantID)
}

// States returns the connection state per tenant.
func (h *Hub) States() map[string]string {
	h.mu.Lock()
	routers := make(map[string]*Router, len(h.routers))
	for k, v := range h.routers {
		routers[k] = v
	}
	h.mu.Unlock()

	out := make(map[string]string, len(routers))
	for tenant, r := range routers {
		out[tenant] = r.State()
	}
	return out
}

// Tenants returns the tenants with a router, sorted.
func (h *Hub) Tenants() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.routers))
	for t := range h.routers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close closes every router. Subscribe fails afterwards.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	routers := h.routers
	h.routers = map[string]*Router{}
	h.refs = map[string]int{}
	h.mu.Unlock()

	for _, r := range routers {
		_ = r.Close()
	}
	h.logger.Info("realtime hub closed", slog.Int("routers", len(routers)))
	return nil
}
