package domain

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformedOrder is returned for hand-off payloads that cannot be restored.
var ErrMalformedOrder = errors.New("malformed persisted order")

// PersistedOrder is the hand-off payload used to reopen an order in the cart.
type PersistedOrder struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number,omitempty"`
	Items       []PersistedItem `json:"items"`
	Details
}

// PersistedItem is one item of a PersistedOrder.
type PersistedItem struct {
	ID        string     `json:"id,omitempty"`
	ProductID string     `json:"product_id,omitempty"`
	Name      string     `json:"name,omitempty"`
	UnitPrice int64      `json:"unit_price"`
	Quantity  int        `json:"quantity"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// PersistedOrderFrom builds the hand-off payload for an order.
func PersistedOrderFrom(o *Order) PersistedOrder {
	items := make([]PersistedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PersistedItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Modifiers: it.Modifiers,
		})
	}
	return PersistedOrder{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Items:       items,
		Details: Details{
			OrderType:       o.OrderType,
			PaymentMethod:   o.PaymentMethod,
			CustomerName:    o.CustomerName,
			TableNumber:     o.TableNumber,
			DeliveryAddress: o.DeliveryAddress,
			Notes:           o.Notes,
		},
	}
}

// ParsePersistedOrder reads a hand-off payload. Missing item fields get
// defaults when the cart is restored; a payload that is not an object, or
// whose items are present but not an array, is rejected.
func ParsePersistedOrder(data []byte) (PersistedOrder, error) {
	if !gjson.ValidBytes(data) {
		return PersistedOrder{}, fmt.Errorf("%w: invalid json", ErrMalformedOrder)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return PersistedOrder{}, fmt.Errorf("%w: expected an object", ErrMalformedOrder)
	}

	items := root.Get("items")
	if items.Exists() && items.Type != gjson.Null && !items.IsArray() {
		return PersistedOrder{}, fmt.Errorf("%w: items must be an array", ErrMalformedOrder)
	}

	o := PersistedOrder{
		ID:          root.Get("id").String(),
		OrderNumber: root.Get("order_number").String(),
		Items:       []PersistedItem{},
		Details: Details{
			OrderType:       root.Get("order_type").String(),
			PaymentMethod:   root.Get("payment_method").String(),
			CustomerName:    root.Get("customer_name").String(),
			TableNumber:     root.Get("table_number").String(),
			DeliveryAddress: root.Get("delivery_address").String(),
			Notes:           root.Get("notes").String(),
		},
	}

	for _, it := range items.Array() {
		o.Items = append(o.Items, parsePersistedItem(it))
	}
	return o, nil
}

func parsePersistedItem(it gjson.Result) PersistedItem {
	price := it.Get("unit_price")
	if !price.Exists() {
		price = it.Get("price")
	}
	item := PersistedItem{
		ID:        it.Get("id").String(),
		ProductID: it.Get("product_id").String(),
		Name:      it.Get("name").String(),
		UnitPrice: price.Int(),
		Quantity:  int(it.Get("quantity").Int()),
		Modifiers: []Modifier{},
	}

	mods := it.Get("modifiers")
	if mods.IsArray() {
		for _, m := range mods.Array() {
			if !m.IsObject() {
				continue
			}
			extra := m.Get("extra_price")
			if !extra.Exists() {
				extra = m.Get("extraPrice")
			}
			item.Modifiers = append(item.Modifiers, Modifier{
				Name:       m.Get("name").String(),
				Value:      m.Get("value").String(),
				ExtraPrice: extra.Int(),
			})
		}
	}
	return item
}
