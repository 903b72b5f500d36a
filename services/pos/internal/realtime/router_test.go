package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raulancona/gourmetclick/pkg/logger"
)

// fakeUpstream records opened channels and lets tests push events into them.
type fakeUpstream struct {
	mu       sync.Mutex
	live     int
	maxLive  int
	opened   []*fakeChannel
	openErr  error
	lastConf ChannelConfig
}

type fakeChannel struct {
	up      *fakeUpstream
	tenant  string
	onEvent func(Event)
	onError func(error)
	closed  bool
}

func (f *fakeUpstream) Open(_ context.Context, cfg ChannelConfig, onEvent func(Event), onError func(error)) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastConf = cfg
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := &fakeChannel{up: f, tenant: cfg.TenantID, onEvent: onEvent, onError: onError}
	f.opened = append(f.opened, ch)
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	return ch, nil
}

func (c *fakeChannel) Close() error {
	c.up.mu.Lock()
	defer c.up.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.up.live--
	}
	return nil
}

func (c *fakeChannel) emit(table string) {
	c.onEvent(Event{Table: table, Type: "UPDATE"})
}

func (f *fakeUpstream) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[len(f.opened)-1]
}

func (f *fakeUpstream) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func newTestRouter() (*Router, *fakeUpstream) {
	up := &fakeUpstream{}
	return NewRouter(up, nil, logger.Discard()), up
}

func TestRouter_InitialState(t *testing.T) {
	r, _ := newTestRouter()
	assert.Equal(t, StateDisconnected, r.State())
	assert.Equal(t, "", r.Tenant())
}

func TestRouter_FanOutByTable(t *testing.T) {
	r, up := newTestRouter()
	var got1, got2, gotCategories []Event
	r.Subscribe(TableProducts, func(ev Event) { got1 = append(got1, ev) })
	r.Subscribe(TableProducts, func(ev Event) { got2 = append(got2, ev) })
	r.Subscribe(TableCategories, func(ev Event) { gotCategories = append(gotCategories, ev) })

	require.NoError(t, r.SetTenant(context.Background(), "tenant-a"))
	up.last().emit(TableProducts)

	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Empty(t, gotCategories)
	assert.Equal(t, "tenant-a", got1[0].TenantID)
}

func TestRouter_CallbacksRunInRegistrationOrder(t *testing.T) {
	r, up := newTestRouter()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		r.Subscribe(TableOrders, func(Event) { order = append(order, i) })
	}
	require.NoError(t, r.SetTenant(context.Background(), "t1"))
	up.last().emit(TableOrders)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRouter_TenantSwitchKeepsListeners(t *testing.T) {
	r, up := newTestRouter()
	var events []Event
	r.Subscribe(TableProducts, func(ev Event) { events = append(events, ev) })

	require.NoError(t, r.SetTenant(context.Background(), "tenant-a"))
	first := up.last()
	require.NoError(t, r.SetTenant(context.Background(), "tenant-b"))
	second := up.last()

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Equal(t, 1, up.liveCount())
	assert.Equal(t, 1, up.maxLive)
	assert.Equal(t, "tenant-b", r.Tenant())
	assert.Equal(t, StateConnected, r.State())

	second.emit(TableProducts)
	require.Len(t, events, 1)
	assert.Equal(t, "tenant-b", events[0].TenantID)

	// The replaced channel's late events are dropped.
	first.emit(TableProducts)
	assert.Len(t, events, 1)
}

func TestRouter_ManySwitchesNeverOverlap(t *testing.T) {
	r, up := newTestRouter()
	for _, tenant := range []string{"a", "b", "c", "a", "", "d"} {
		require.NoError(t, r.SetTenant(context.Background(), tenant))
		assert.LessOrEqual(t, up.liveCount(), 1)
	}
	assert.Equal(t, 1, up.maxLive)
}

func TestRouter_SameTenantIsNoop(t *testing.T) {
	r, up := newTestRouter()
	require.NoError(t, r.SetTenant(context.Background(), "t1"))
	require.NoError(t, r.SetTenant(context.Background(), "t1"))
	assert.Len(t, up.opened, 1)
}

func TestRouter_EmptyTenantDisconnects(t *testing.T) {
	r, up := newTestRouter()
	require.NoError(t, r.SetTenant(context.Background(), "t1"))
	require.NoError(t, r.SetTenant(context.Background(), ""))

	assert.Equal(t, StateDisconnected, r.State())
	assert.Equal(t, 0, up.liveCount())
}

func TestRouter_BindingsFilterByTenant(t *testing.T) {
	r, up := newTestRouter()
	require.NoError(t, r.SetTenant(context.Background(), "t9"))

	require.Len(t, up.lastConf.Bindings, len(DefaultBindings()))
	filters := map[string]string{}
	for _, b := range up.lastConf.Bindings {
		filters[b.Table] = b.Filter("t9")
	}
	assert.Equal(t, "tenant_id=eq.t9", filters[TableProducts])
	assert.Equal(t, "id=eq.t9", filters[TableTenants])
}

func TestRouter_OpenFailureIsNotRetried(t *testing.T) {
	r, up := newTestRouter()
	up.openErr = errors.New("join rejected")
	var got int
	r.Subscribe(TableOrders, func(Event) { got++ })

	err := r.SetTenant(context.Background(), "t1")
	require.Error(t, err)
	assert.Equal(t, StateError, r.State())
	assert.Empty(t, up.opened)
	assert.Equal(t, 0, got)

	// An explicit SetTenant for the same tenant tries again.
	up.openErr = nil
	require.NoError(t, r.SetTenant(context.Background(), "t1"))
	assert.Equal(t, StateConnected, r.State())
}

func TestRouter_ChannelErrorIsContained(t *testing.T) {
	r, up := newTestRouter()
	var got int
	r.Subscribe(TableOrders, func(Event) { got++ })
	require.NoError(t, r.SetTenant(context.Background(), "t1"))

	up.last().onError(errors.New("socket closed"))

	assert.Equal(t, StateError, r.State())
	assert.Equal(t, 0, got)
	assert.Len(t, up.opened, 1)
}

func TestRouter_StaleChannelErrorIgnored(t *testing.T) {
	r, up := newTestRouter()
	require.NoError(t, r.SetTenant(context.Background(), "a"))
	old := up.last()
	require.NoError(t, r.SetTenant(context.Background(), "b"))

	old.onError(errors.New("late failure"))
	assert.Equal(t, StateConnected, r.State())
}

func TestRouter_Unsubscribe(t *testing.T) {
	r, up := newTestRouter()
	var a, b int
	subA := r.Subscribe(TableProducts, func(Event) { a++ })
	r.Subscribe(TableProducts, func(Event) { b++ })
	require.NoError(t, r.SetTenant(context.Background(), "t1"))

	subA.Unsubscribe()
	subA.Unsubscribe()
	up.last().emit(TableProducts)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, r.ListenerCount(TableProducts))
	assert.Equal(t, TableProducts, subA.Table())
}

func TestRouter_UnsubscribeDuringDispatch(t *testing.T) {
	r, up := newTestRouter()
	var second int
	var sub *Subscription
	sub = r.Subscribe(TableOrders, func(Event) { sub.Unsubscribe() })
	r.Subscribe(TableOrders, func(Event) { second++ })
	require.NoError(t, r.SetTenant(context.Background(), "t1"))

	up.last().emit(TableOrders)
	up.last().emit(TableOrders)

	assert.Equal(t, 2, second)
	assert.Equal(t, 1, r.ListenerCount(TableOrders))
}

func TestRouter_PanickingListenerDoesNotStopOthers(t *testing.T) {
	r, up := newTestRouter()
	var got int
	r.Subscribe(TableOrders, func(Event) { panic("boom") })
	r.Subscribe(TableOrders, func(Event) { got++ })
	require.NoError(t, r.SetTenant(context.Background(), "t1"))

	up.last().emit(TableOrders)
	assert.Equal(t, 1, got)
}

func TestRouter_Close(t *testing.T) {
	r, up := newTestRouter()
	var got int
	r.Subscribe(TableOrders, func(Event) { got++ })
	require.NoError(t, r.SetTenant(context.Background(), "t1"))
	ch := up.last()

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.True(t, ch.closed)
	assert.Equal(t, StateClosed, r.State())
	ch.emit(TableOrders)
	assert.Equal(t, 0, got)
	assert.ErrorIs(t, r.SetTenant(context.Background(), "t2"), ErrRouterClosed)
}
