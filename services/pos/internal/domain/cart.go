package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Order type constants.
const (
	OrderTypeDineIn   = "dine_in"
	OrderTypePickup   = "pickup"
	OrderTypeDelivery = "delivery"
)

// Payment method constants.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

// IsValidOrderType checks an order type string.
func IsValidOrderType(t string) bool {
	return t == OrderTypeDineIn || t == OrderTypePickup || t == OrderTypeDelivery
}

// IsValidPaymentMethod checks a payment method string.
func IsValidPaymentMethod(m string) bool {
	return m == PaymentCash || m == PaymentCard || m == PaymentTransfer
}

// PlaceholderItemName names restored lines whose persisted name is missing.
const PlaceholderItemName = "Producto"

// newLineID is swapped in tests that need deterministic line ids.
var newLineID = uuid.NewString

// Modifier is a customization attached to a cart line.
type Modifier struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	ExtraPrice int64  `json:"extra_price"`
}

// ProductSnapshot is the product data copied into a line when it is added.
type ProductSnapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

// CartLine is one product+modifier+price combination and its quantity.
type CartLine struct {
	LineID    string     `json:"line_id"`
	ProductID string     `json:"product_id"`
	Name      string     `json:"name"`
	UnitPrice int64      `json:"unit_price"`
	Quantity  int        `json:"quantity"`
	Modifiers []Modifier `json:"modifiers"`
}

// Subtotal returns unit price times quantity.
func (l *CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// OrderRef points at a persisted order that the cart is editing.
type OrderRef struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number,omitempty"`
}

// Details is the order metadata of a cart session, independent of its lines.
type Details struct {
	OrderType       string `json:"order_type"`
	PaymentMethod   string `json:"payment_method"`
	CustomerName    string `json:"customer_name"`
	TableNumber     string `json:"table_number"`
	DeliveryAddress string `json:"delivery_address"`
	Notes           string `json:"notes"`
}

// DefaultDetails returns the metadata of a fresh cart.
func DefaultDetails() Details {
	return Details{OrderType: OrderTypeDineIn, PaymentMethod: PaymentCash}
}

// Cart is the order being composed on one terminal of a tenant.
type Cart struct {
	TenantID   string     `json:"tenant_id"`
	TerminalID string     `json:"terminal_id"`
	Lines      []CartLine `json:"lines"`
	Details
	EditingOrder *OrderRef `json:"editing_order,omitempty"`
	Version      int       `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewCart returns an empty cart with default metadata.
func NewCart(tenantID, terminalID string) *Cart {
	return &Cart{
		TenantID:   tenantID,
		TerminalID: terminalID,
		Lines:      []CartLine{},
		Details:    DefaultDetails(),
	}
}

// AddItem merges qty into the line with the same product, unit price and an
// equivalent modifier set, or appends a new line. It returns the affected line.
func (c *Cart) AddItem(p ProductSnapshot, modifiers []Modifier, qty int) CartLine {
	if qty < 1 {
		qty = 1
	}
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.ProductID == p.ID && l.UnitPrice == p.UnitPrice && ModifiersEqual(l.Modifiers, modifiers) {
			l.Quantity += qty
			return *l
		}
	}

	line := CartLine{
		LineID:    newLineID(),
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Quantity:  qty,
		Modifiers: cloneModifiers(modifiers),
	}
	c.Lines = append(c.Lines, line)
	return line
}

// RemoveItem deletes the line. It reports whether the line existed.
func (c *Cart) RemoveItem(lineID string) bool {
	for i := range c.Lines {
		if c.Lines[i].LineID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateQuantity adds delta to the line quantity, never going below 1.
func (c *Cart) UpdateQuantity(lineID string, delta int) (CartLine, bool) {
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.LineID == lineID {
			l.Quantity = max(1, l.Quantity+delta)
			return *l, true
		}
	}
	return CartLine{}, false
}

// SetDetails replaces the order metadata.
func (c *Cart) SetDetails(d Details) {
	c.Details = d
}

// Clear drops all lines, resets metadata and cancels any edit in progress.
func (c *Cart) Clear() {
	c.Lines = []CartLine{}
	c.Details = DefaultDetails()
	c.EditingOrder = nil
}

// RestoreFromOrder replaces the cart with the contents of a persisted order
// and marks the cart as editing it. Items missing an id, a quantity or a name
// get a fresh id, quantity 1 and PlaceholderItemName.
func (c *Cart) RestoreFromOrder(o PersistedOrder) {
	lines := make([]CartLine, 0, len(o.Items))
	for _, it := range o.Items {
		line := CartLine{
			LineID:    it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Modifiers: cloneModifiers(it.Modifiers),
		}
		if line.LineID == "" {
			line.LineID = newLineID()
		}
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		if line.Name == "" {
			line.Name = PlaceholderItemName
		}
		lines = append(lines, line)
	}

	c.Lines = lines
	c.Details = o.Details
	if c.OrderType == "" {
		c.OrderType = OrderTypeDineIn
	}
	if c.PaymentMethod == "" {
		c.PaymentMethod = PaymentCash
	}
	c.EditingOrder = nil
	if o.ID != "" {
		c.EditingOrder = &OrderRef{ID: o.ID, OrderNumber: o.OrderNumber}
	}
}

// Total is the sum of unit price times quantity over all lines.
func (c *Cart) Total() int64 {
	var total int64
	for i := range c.Lines {
		total += c.Lines[i].Subtotal()
	}
	return total
}

// ItemCount is the sum of quantities over all lines.
func (c *Cart) ItemCount() int {
	var count int
	for i := range c.Lines {
		count += c.Lines[i].Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ModifiersEqual compares two modifier sets ignoring order: same length and,
// once both are sorted by name, equal name, extra price and value pairwise.
func ModifiersEqual(a, b []Modifier) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedModifiers(a), sortedModifiers(b)
	for i := range as {
		if as[i].Name != bs[i].Name || as[i].ExtraPrice != bs[i].ExtraPrice || as[i].Value != bs[i].Value {
			return false
		}
	}
	return true
}

func sortedModifiers(m []Modifier) []Modifier {
	out := cloneModifiers(m)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func cloneModifiers(m []Modifier) []Modifier {
	out := make([]Modifier, len(m))
	copy(out, m)
	return out
}
