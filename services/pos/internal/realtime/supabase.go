package realtime

import (
	"context"

	"github.com/raulancona/gourmetclick/pkg/supabase"
)

// SupabaseUpstream opens one Realtime channel per tenant, with a
// postgres_changes binding per watched table filtered by tenant.
type SupabaseUpstream struct {
	client *supabase.RealtimeClient
}

// NewSupabaseUpstream wraps a Realtime client.
func NewSupabaseUpstream(client *supabase.RealtimeClient) *SupabaseUpstream {
	return &SupabaseUpstream{client: client}
}

// Topic names the channel of a tenant.
func Topic(tenantID string) string {
	return "pos:" + tenantID
}

// Open implements Upstream.
func (u *SupabaseUpstream) Open(ctx context.Context, cfg ChannelConfig, onEvent func(Event), onError func(error)) (Channel, error) {
	bindings := make([]supabase.Binding, 0, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		bindings = append(bindings, supabase.Binding{Table: b.Table, Filter: b.Filter(cfg.TenantID)})
	}

	ch, err := u.client.Join(ctx, Topic(cfg.TenantID), bindings,
		func(ev supabase.ChangeEvent) {
			onEvent(Event{
				TenantID:  cfg.TenantID,
				Table:     ev.Table,
				Type:      ev.Type,
				Record:    ev.Record,
				OldRecord: ev.OldRecord,
			})
		},
		onError,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
