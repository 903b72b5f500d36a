package domain

import "time"

// Order status constants.
const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Order is a persisted ticket.
type Order struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id"`
	OrderNumber     string      `json:"order_number"`
	Status          string      `json:"status"`
	OrderType       string      `json:"order_type"`
	PaymentMethod   string      `json:"payment_method"`
	CustomerName    string      `json:"customer_name,omitempty"`
	TableNumber     string      `json:"table_number,omitempty"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	Items           []OrderItem `json:"items"`
	Total           int64       `json:"total"`
	StaffID         string      `json:"staff_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem is a line of an order.
type OrderItem struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	ProductID string     `json:"product_id,omitempty"`
	Name      string     `json:"name"`
	UnitPrice int64      `json:"unit_price"`
	Quantity  int        `json:"quantity"`
	Modifiers []Modifier `json:"modifiers"`
}

// LineTotal returns the total price for this line item.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ValidStatuses returns all order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedTransitions defines which status transitions are valid. Kitchen
// flow may skip steps; delivered and cancelled are terminal.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:   {OrderStatusPreparing, OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled},
		OrderStatusPreparing: {OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled},
		OrderStatusReady:     {OrderStatusDelivered, OrderStatusCancelled},
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
	}
}

// CanTransitionTo checks if the order can move to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	for _, s := range AllowedTransitions()[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order can no longer change.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// ApplyCart copies lines and metadata of the cart into the order and
// recomputes the total. Item ids are the cart line ids.
func (o *Order) ApplyCart(c *Cart) {
	items := make([]OrderItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, OrderItem{
			ID:        l.LineID,
			OrderID:   o.ID,
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Modifiers: cloneModifiers(l.Modifiers),
		})
	}
	o.Items = items
	o.OrderType = c.OrderType
	o.PaymentMethod = c.PaymentMethod
	o.CustomerName = c.CustomerName
	o.TableNumber = c.TableNumber
	o.DeliveryAddress = c.DeliveryAddress
	o.Notes = c.Notes
	o.Total = c.Total()
}
