package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// Cart limits.
const (
	MaxQuantityPerLine = 999
	MaxLinesPerCart    = 100
)

// ModifierInput selects one option of a product.
type ModifierInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Value string `json:"value" validate:"max=100"`
}

// AddItemInput holds the parameters for adding a product to the cart.
type AddItemInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=0,lte=999"`
	Modifiers []ModifierInput `json:"modifiers" validate:"max=20,dive"`
}

// UpdateDetailsInput replaces the order metadata of the cart.
type UpdateDetailsInput struct {
	OrderType       string `json:"order_type" validate:"required,oneof=dine_in pickup delivery"`
	PaymentMethod   string `json:"payment_method" validate:"required,oneof=cash card transfer"`
	CustomerName    string `json:"customer_name" validate:"max=120"`
	TableNumber     string `json:"table_number" validate:"max=20"`
	DeliveryAddress string `json:"delivery_address" validate:"max=300"`
	Notes           string `json:"notes" validate:"max=500"`
}

// CartService implements the cart composer on top of per-terminal sessions.
type CartService struct {
	carts    repository.CartRepository
	handoffs repository.HandoffRepository
	products repository.ProductRepository
	orders   repository.OrderRepository
	numbers  OrderNumberer
	producer *event.Producer
	logger   *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(
	carts repository.CartRepository,
	handoffs repository.HandoffRepository,
	products repository.ProductRepository,
	orders repository.OrderRepository,
	numbers OrderNumberer,
	producer *event.Producer,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		carts:    carts,
		handoffs: handoffs,
		products: products,
		orders:   orders,
		numbers:  numbers,
		producer: producer,
		logger:   logger,
	}
}

// GetCart returns the terminal's cart. A pending edit hand-off is consumed
// first: the slot is cleared and the cart is rebuilt from the order.
func (s *CartService) GetCart(ctx context.Context, tenantID, terminalID string) (*domain.Cart, error) {
	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}

	payload, ok, err := s.handoffs.Take(ctx, tenantID, terminalID)
	if err != nil {
		return nil, fmt.Errorf("take handoff: %w", err)
	}
	if !ok {
		return cart, nil
	}

	po, err := domain.ParsePersistedOrder(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding malformed order handoff",
			slog.String("tenant_id", tenantID),
			slog.String("terminal_id", terminalID),
			slog.String("error", err.Error()),
		)
		return cart, nil
	}

	expected := cart.Version
	cart.RestoreFromOrder(po)
	if err := s.save(ctx, cart, expected); err != nil {
		// Put the order back so the next read can retry the restore.
		if perr := s.handoffs.Put(ctx, tenantID, terminalID, payload); perr != nil {
			s.logger.ErrorContext(ctx, "failed to return order handoff",
				slog.String("tenant_id", tenantID),
				slog.String("terminal_id", terminalID),
				slog.String("order_id", po.ID),
				slog.String("error", perr.Error()),
			)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart restored from order",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("order_id", po.ID),
		slog.Int("lines", len(cart.Lines)),
	)
	return cart, nil
}

// AddItem snapshots the product and adds it to the cart. The line's unit
// price is the product price plus the extra price of each chosen modifier.
func (s *CartService) AddItem(ctx context.Context, tenantID, terminalID string, input AddItemInput) (*domain.Cart, error) {
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || qty > MaxQuantityPerLine {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", MaxQuantityPerLine))
	}

	product, err := s.products.GetByID(ctx, tenantID, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Available {
		return nil, apperrors.InvalidInput(fmt.Sprintf("product %q is not available", product.Name))
	}

	modifiers, err := resolveModifiers(product, input.Modifiers)
	if err != nil {
		return nil, err
	}
	snapshot := product.Snapshot()
	for _, m := range modifiers {
		snapshot.UnitPrice += m.ExtraPrice
	}

	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	expected := cart.Version

	line := cart.AddItem(snapshot, modifiers, qty)
	if len(cart.Lines) > MaxLinesPerCart {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d lines", MaxLinesPerCart))
	}
	if line.Quantity > MaxQuantityPerLine {
		return nil, apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerLine))
	}

	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("product_id", product.ID),
		slog.String("line_id", line.LineID),
		slog.Int("quantity", qty),
	)
	return cart, nil
}

// resolveModifiers checks the chosen options against what the product offers
// and copies their extra price.
func resolveModifiers(p *domain.Product, chosen []ModifierInput) ([]domain.Modifier, error) {
	offered := make(map[string]domain.ModifierOption, len(p.Modifiers))
	for _, o := range p.Modifiers {
		offered[o.Name] = o
	}

	out := make([]domain.Modifier, 0, len(chosen))
	seen := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		opt, ok := offered[c.Name]
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %q has no modifier %q", p.Name, c.Name))
		}
		if seen[c.Name] {
			return nil, apperrors.InvalidInput(fmt.Sprintf("modifier %q chosen twice", c.Name))
		}
		seen[c.Name] = true
		if len(opt.Values) > 0 && !contains(opt.Values, c.Value) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid value %q for modifier %q", c.Value, c.Name))
		}
		out = append(out, domain.Modifier{Name: c.Name, Value: c.Value, ExtraPrice: opt.ExtraPrice})
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// RemoveItem deletes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, tenantID, terminalID, lineID string) (*domain.Cart, error) {
	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	expected := cart.Version

	if !cart.RemoveItem(lineID) {
		return nil, apperrors.NotFound("cart line", lineID)
	}
	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("line_id", lineID),
	)
	return cart, nil
}

// UpdateQuantity changes a line's quantity by delta, never below 1.
func (s *CartService) UpdateQuantity(ctx context.Context, tenantID, terminalID, lineID string, delta int) (*domain.Cart, error) {
	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	expected := cart.Version

	line, ok := cart.UpdateQuantity(lineID, delta)
	if !ok {
		return nil, apperrors.NotFound("cart line", lineID)
	}
	if line.Quantity > MaxQuantityPerLine {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}
	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart line quantity updated",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("line_id", lineID),
		slog.Int("quantity", line.Quantity),
	)
	return cart, nil
}

// UpdateDetails replaces the order metadata of the cart.
func (s *CartService) UpdateDetails(ctx context.Context, tenantID, terminalID string, input UpdateDetailsInput) (*domain.Cart, error) {
	if !domain.IsValidOrderType(input.OrderType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid order type %q", input.OrderType))
	}
	if !domain.IsValidPaymentMethod(input.PaymentMethod) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	expected := cart.Version

	cart.SetDetails(domain.Details{
		OrderType:       input.OrderType,
		PaymentMethod:   input.PaymentMethod,
		CustomerName:    input.CustomerName,
		TableNumber:     input.TableNumber,
		DeliveryAddress: input.DeliveryAddress,
		Notes:           input.Notes,
	})
	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}
	return cart, nil
}

// Clear empties the cart, resets its metadata and cancels any edit.
func (s *CartService) Clear(ctx context.Context, tenantID, terminalID string) (*domain.Cart, error) {
	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	expected := cart.Version

	cart.Clear()
	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
	)
	return cart, nil
}

// BeginEdit writes the order into the terminal's hand-off slot. The next
// GetCart on that terminal restores it into the cart.
func (s *CartService) BeginEdit(ctx context.Context, tenantID, terminalID, orderID string) error {
	order, err := s.orders.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		return apperrors.Conflict(fmt.Sprintf("order %s is %s and can no longer be edited", order.OrderNumber, order.Status))
	}

	payload, err := json.Marshal(domain.PersistedOrderFrom(order))
	if err != nil {
		return fmt.Errorf("marshal handoff: %w", err)
	}
	if err := s.handoffs.Put(ctx, tenantID, terminalID, payload); err != nil {
		return fmt.Errorf("put handoff: %w", err)
	}

	s.logger.InfoContext(ctx, "order handed off for editing",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("order_id", orderID),
	)
	return nil
}

// Checkout turns the cart into an order, or updates the order being edited.
// The cart is claimed with a versioned save before the order is written, so
// a second checkout of the same cart gets a conflict. If the order cannot be
// stored the cart is put back.
func (s *CartService) Checkout(ctx context.Context, tenantID, terminalID, staffID string) (*domain.Order, error) {
	cart, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, apperrors.InvalidInput("cart is empty")
	}
	if cart.OrderType == domain.OrderTypeDelivery && cart.DeliveryAddress == "" {
		return nil, apperrors.InvalidInput("delivery orders require a delivery address")
	}
	now := time.Now().UTC()

	editing := cart.EditingOrder != nil
	var order *domain.Order
	if editing {
		order, err = s.orders.GetByID(ctx, tenantID, cart.EditingOrder.ID)
		if err != nil {
			return nil, err
		}
		if order.IsTerminal() {
			return nil, apperrors.Conflict(fmt.Sprintf("order %s is %s and can no longer be edited", order.OrderNumber, order.Status))
		}
		order.UpdatedAt = now
	} else {
		order = &domain.Order{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			OrderNumber: s.numbers.Next(),
			Status:      domain.OrderStatusPending,
			StaffID:     staffID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	order.ApplyCart(cart)

	original := *cart
	claimed := *cart
	claimed.Clear()
	if err := s.save(ctx, &claimed, cart.Version); err != nil {
		return nil, err
	}

	if editing {
		err = s.orders.Update(ctx, order)
	} else {
		err = s.orders.Create(ctx, order)
	}
	if err != nil {
		s.release(ctx, &original, claimed.Version)
		if editing {
			return nil, fmt.Errorf("update order: %w", err)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	if editing {
		if err := s.producer.PublishOrderUpdated(ctx, order); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.updated event",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	} else {
		if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.created event",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "cart checked out",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.Int64("total", order.Total),
	)
	return order, nil
}

// release puts a claimed cart back after a failed checkout.
func (s *CartService) release(ctx context.Context, cart *domain.Cart, claimedVersion int) {
	if err := s.save(ctx, cart, claimedVersion); err != nil {
		s.logger.ErrorContext(ctx, "failed to restore cart after checkout failure",
			slog.String("tenant_id", cart.TenantID),
			slog.String("terminal_id", cart.TerminalID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) load(ctx context.Context, tenantID, terminalID string) (*domain.Cart, error) {
	if tenantID == "" {
		return nil, apperrors.InvalidInput("tenant id is required")
	}
	cart, err := s.carts.Get(ctx, tenantID, terminalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewCart(tenantID, terminalID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart, expected int) error {
	cart.UpdatedAt = time.Now().UTC()
	ok, err := s.carts.SaveIfVersion(ctx, cart, expected)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}
	return nil
}
