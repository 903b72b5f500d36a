package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/raulancona/gourmetclick/pkg/kafka"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

// Kafka topics for POS domain events.
var (
	TopicOrderCreated      = pkgkafka.Topic("order", "created")
	TopicOrderUpdated      = pkgkafka.Topic("order", "updated")
	TopicCashSessionOpened = pkgkafka.Topic("cash_session", "opened")
	TopicCashSessionClosed = pkgkafka.Topic("cash_session", "closed")
	TopicExpenseCreated    = pkgkafka.Topic("expense", "created")
)

// Aggregate types.
const (
	AggregateTypeOrder       = "order"
	AggregateTypeCashSession = "cash_session"
	AggregateTypeExpense     = "expense"
)

// SourcePOSService identifies events originating from this service.
const SourcePOSService = "pos-service"

// OrderData is the payload of order events.
type OrderData struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	OrderType     string          `json:"order_type"`
	PaymentMethod string          `json:"payment_method"`
	Total         int64           `json:"total"`
	ItemCount     int             `json:"item_count"`
	Items         []OrderItemData `json:"items"`
	StaffID       string          `json:"staff_id,omitempty"`
}

// OrderItemData is an item within order events.
type OrderItemData struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CashSessionData is the payload of cash session events.
type CashSessionData struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	OpeningAmount  int64  `json:"opening_amount"`
	ExpectedAmount int64  `json:"expected_amount,omitempty"`
	CountedAmount  int64  `json:"counted_amount,omitempty"`
	Difference     int64  `json:"difference,omitempty"`
}

// ExpenseData is the payload of expense.created.
type ExpenseData struct {
	ExpenseID     string `json:"expense_id"`
	Category      string `json:"category"`
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

// Producer publishes POS domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the POS service.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishOrderCreated publishes a pos.order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	return p.publishOrder(ctx, TopicOrderCreated, order)
}

// PublishOrderUpdated publishes a pos.order.updated event.
func (p *Producer) PublishOrderUpdated(ctx context.Context, order *domain.Order) error {
	return p.publishOrder(ctx, TopicOrderUpdated, order)
}

func (p *Producer) publishOrder(ctx context.Context, topic string, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	count := 0
	for i, it := range order.Items {
		items[i] = OrderItemData{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
		count += it.Quantity
	}

	data := OrderData{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		OrderType:     order.OrderType,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		ItemCount:     count,
		Items:         items,
		StaffID:       order.StaffID,
	}
	return p.publish(ctx, topic, order.TenantID, order.ID, AggregateTypeOrder, data)
}

// PublishCashSessionOpened publishes a pos.cash_session.opened event.
func (p *Producer) PublishCashSessionOpened(ctx context.Context, s *domain.CashSession) error {
	return p.publish(ctx, TopicCashSessionOpened, s.TenantID, s.ID, AggregateTypeCashSession, cashSessionData(s))
}

// PublishCashSessionClosed publishes a pos.cash_session.closed event.
func (p *Producer) PublishCashSessionClosed(ctx context.Context, s *domain.CashSession) error {
	return p.publish(ctx, TopicCashSessionClosed, s.TenantID, s.ID, AggregateTypeCashSession, cashSessionData(s))
}

// PublishExpenseCreated publishes a pos.expense.created event.
func (p *Producer) PublishExpenseCreated(ctx context.Context, e *domain.Expense) error {
	data := ExpenseData{
		ExpenseID:     e.ID,
		Category:      e.Category,
		Amount:        e.Amount,
		PaymentMethod: e.PaymentMethod,
	}
	return p.publish(ctx, TopicExpenseCreated, e.TenantID, e.ID, AggregateTypeExpense, data)
}

// Close releases the underlying publisher.
func (p *Producer) Close() error {
	return p.publisher.Close()
}

func cashSessionData(s *domain.CashSession) CashSessionData {
	return CashSessionData{
		SessionID:      s.ID,
		Status:         s.Status,
		OpeningAmount:  s.OpeningAmount,
		ExpectedAmount: s.ExpectedAmount,
		CountedAmount:  s.CountedAmount,
		Difference:     s.Difference,
	}
}

func (p *Producer) publish(ctx context.Context, topic, tenantID, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, tenantID, aggregateID, aggregateType, SourcePOSService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("tenant_id", tenantID),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
