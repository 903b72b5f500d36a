package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// UpdateStatusInput holds the target status of an order.
type UpdateStatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending preparing ready delivered cancelled"`
}

// OrderService implements order queries and the kitchen status flow.
type OrderService struct {
	repo     repository.OrderRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(repo repository.OrderRepository, producer *event.Producer, logger *slog.Logger) *OrderService {
	return &OrderService{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// Get returns one order of the tenant.
func (s *OrderService) Get(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	return s.repo.GetByID(ctx, tenantID, id)
}

// List returns a page of the tenant's orders.
func (s *OrderService) List(ctx context.Context, tenantID string, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Status != "" && !domain.IsValidStatus(filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid status filter %q", filter.Status))
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, apperrors.InvalidInput("from must be before to")
	}
	return s.repo.List(ctx, tenantID, filter)
}

// UpdateStatus moves an order along the kitchen flow. Delivered and
// cancelled orders are final.
func (s *OrderService) UpdateStatus(ctx context.Context, tenantID, id, status string) (*domain.Order, error) {
	if !domain.IsValidStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", status))
	}

	order, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if !order.CanTransitionTo(status) {
		return nil, apperrors.InvalidTransition("order "+order.OrderNumber, order.Status, status)
	}

	if err := s.repo.UpdateStatus(ctx, tenantID, id, status); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	from := order.Status
	order.Status = status
	order.UpdatedAt = time.Now().UTC()

	if err := s.producer.PublishOrderUpdated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.updated event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order status changed",
		slog.String("tenant_id", tenantID),
		slog.String("order_id", id),
		slog.String("from", from),
		slog.String("to", status),
	)
	return order, nil
}

// Cancel is UpdateStatus to cancelled.
func (s *OrderService) Cancel(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	return s.UpdateStatus(ctx, tenantID, id, domain.OrderStatusCancelled)
}
