package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusPending, OrderStatusPreparing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPreparing, OrderStatusReady, true},
		{OrderStatusReady, OrderStatusDelivered, true},
		{OrderStatusReady, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{"bogus", OrderStatusPending, false},
	}
	for _, tt := range tests {
		o := &Order{Status: tt.from}
		assert.Equal(t, tt.want, o.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatusDelivered}).IsTerminal())
	assert.True(t, (&Order{Status: OrderStatusCancelled}).IsTerminal())
	assert.False(t, (&Order{Status: OrderStatusReady}).IsTerminal())
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses() {
		assert.True(t, IsValidStatus(s))
	}
	assert.False(t, IsValidStatus("shipped"))
}

func TestApplyCart(t *testing.T) {
	c := NewCart("t1", "main")
	c.AddItem(taco, salsaAndCheese(), 2)
	c.SetDetails(Details{OrderType: OrderTypeDineIn, PaymentMethod: PaymentCard, TableNumber: "7"})

	o := &Order{ID: "order-1"}
	o.ApplyCart(c)

	require.Len(t, o.Items, 1)
	assert.Equal(t, c.Lines[0].LineID, o.Items[0].ID)
	assert.Equal(t, "order-1", o.Items[0].OrderID)
	assert.Equal(t, int64(5000), o.Total)
	assert.Equal(t, "7", o.TableNumber)
	assert.Equal(t, PaymentCard, o.PaymentMethod)
	assert.Equal(t, int64(5000), o.Items[0].LineTotal())
}

func TestCashSessionClose(t *testing.T) {
	s := &CashSession{OpeningAmount: 100000, Status: CashSessionOpen}
	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

	s.Close("staff-1", 245000, 180000, 30000, at)

	assert.Equal(t, int64(250000), s.ExpectedAmount)
	assert.Equal(t, int64(-5000), s.Difference)
	assert.Equal(t, CashSessionClosed, s.Status)
	require.NotNil(t, s.ClosedAt)
	assert.Equal(t, at, *s.ClosedAt)
}

func TestTenantImages(t *testing.T) {
	tn := &Tenant{Name: "Tacos", Slug: "tacos"}
	for _, kind := range []string{ImageLogo, ImageBanner, ImagePopup} {
		require.True(t, IsValidImageKind(kind))
		tn.SetImageURL(kind, "https://cdn/"+kind)
		assert.Equal(t, "https://cdn/"+kind, tn.ImageURL(kind))
	}
	assert.False(t, IsValidImageKind("avatar"))
	assert.Equal(t, "", tn.ImageURL("avatar"))

	card := tn.LinkCard()
	assert.NotNil(t, card.Links)
	assert.Equal(t, "https://cdn/logo", card.LogoURL)
}
