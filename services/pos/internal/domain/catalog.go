package domain

import "time"

// ModifierOption is a customization a product offers, e.g. "Salsa: verde".
type ModifierOption struct {
	Name       string   `json:"name"`
	Values     []string `json:"values,omitempty"`
	ExtraPrice int64    `json:"extra_price"`
}

// Product is a menu item.
type Product struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	CategoryID  string           `json:"category_id,omitempty"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Price       int64            `json:"price"`
	ImageURL    string           `json:"image_url,omitempty"`
	Available   bool             `json:"available"`
	Modifiers   []ModifierOption `json:"modifiers"`
	SortOrder   int              `json:"sort_order"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Snapshot is the data copied into a cart line.
func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{ID: p.ID, Name: p.Name, UnitPrice: p.Price}
}

// Category groups products on the menu.
type Category struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}
