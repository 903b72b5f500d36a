package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// OpenCashInput starts a shift.
type OpenCashInput struct {
	OpeningAmount int64 `json:"opening_amount" validate:"gte=0"`
}

// CloseCashInput settles a shift with the counted drawer amount.
type CloseCashInput struct {
	CountedAmount int64 `json:"counted_amount" validate:"gte=0"`
}

// CashService runs the caja: one open cash session per tenant at a time.
type CashService struct {
	sessions repository.CashSessionRepository
	orders   repository.OrderRepository
	expenses repository.ExpenseRepository
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewCashService creates a new cash service.
func NewCashService(
	sessions repository.CashSessionRepository,
	orders repository.OrderRepository,
	expenses repository.ExpenseRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *CashService {
	return &CashService{
		sessions: sessions,
		orders:   orders,
		expenses: expenses,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open starts a cash session. Fails with AlreadyExists while another one is
// open.
func (s *CashService) Open(ctx context.Context, tenantID, staffID string, input OpenCashInput) (*domain.CashSession, error) {
	if input.OpeningAmount < 0 {
		return nil, apperrors.InvalidInput("opening amount must not be negative")
	}

	session := &domain.CashSession{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		OpenedBy:      staffID,
		OpeningAmount: input.OpeningAmount,
		OpenedAt:      s.now(),
		Status:        domain.CashSessionOpen,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.producer.PublishCashSessionOpened(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cash_session.opened event",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cash session opened",
		slog.String("tenant_id", tenantID),
		slog.String("session_id", session.ID),
		slog.Int64("opening_amount", session.OpeningAmount),
	)
	return session, nil
}

// Close settles the open session against cash sales and cash expenses made
// since it was opened.
func (s *CashService) Close(ctx context.Context, tenantID, staffID string, input CloseCashInput) (*domain.CashSession, error) {
	if input.CountedAmount < 0 {
		return nil, apperrors.InvalidInput("counted amount must not be negative")
	}

	session, err := s.sessions.GetOpen(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sales, err := s.orders.SumCashSales(ctx, tenantID, session.OpenedAt, now)
	if err != nil {
		return nil, fmt.Errorf("sum cash sales: %w", err)
	}
	spent, err := s.expenses.Sum(ctx, tenantID, session.OpenedAt, now, domain.PaymentCash)
	if err != nil {
		return nil, fmt.Errorf("sum cash expenses: %w", err)
	}

	session.Close(staffID, input.CountedAmount, sales, spent, now)
	if err := s.sessions.Close(ctx, session); err != nil {
		return nil, err
	}

	if err := s.producer.PublishCashSessionClosed(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cash_session.closed event",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cash session closed",
		slog.String("tenant_id", tenantID),
		slog.String("session_id", session.ID),
		slog.Int64("expected_amount", session.ExpectedAmount),
		slog.Int64("difference", session.Difference),
	)
	return session, nil
}

// Current returns the open session.
func (s *CashService) Current(ctx context.Context, tenantID string) (*domain.CashSession, error) {
	return s.sessions.GetOpen(ctx, tenantID)
}

// History lists past and current sessions, newest first.
func (s *CashService) History(ctx context.Context, tenantID string, params pagination.Params) ([]domain.CashSession, int, error) {
	return s.sessions.List(ctx, tenantID, params)
}
