package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// CreateExpenseInput records money spent.
type CreateExpenseInput struct {
	Description   string     `json:"description" validate:"required,max=200"`
	Category      string     `json:"category" validate:"max=60"`
	Amount        int64      `json:"amount" validate:"gt=0"`
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=cash card transfer"`
	SpentAt       *time.Time `json:"spent_at"`
}

// expenseRow is the CSV export layout. Amounts are written in major units.
type expenseRow struct {
	Date          string `csv:"date"`
	Description   string `csv:"description"`
	Category      string `csv:"category"`
	PaymentMethod string `csv:"payment_method"`
	Amount        string `csv:"amount"`
}

// ExpenseService records and reports expenses.
type ExpenseService struct {
	repo     repository.ExpenseRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewExpenseService creates a new expense service.
func NewExpenseService(repo repository.ExpenseRepository, producer *event.Producer, logger *slog.Logger) *ExpenseService {
	return &ExpenseService{repo: repo, producer: producer, logger: logger}
}

// Create records an expense paid by createdBy.
func (s *ExpenseService) Create(ctx context.Context, tenantID, createdBy string, input CreateExpenseInput) (*domain.Expense, error) {
	if input.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be greater than zero")
	}
	if !domain.IsValidPaymentMethod(input.PaymentMethod) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	now := time.Now().UTC()
	spentAt := now
	if input.SpentAt != nil {
		spentAt = input.SpentAt.UTC()
	}
	e := &domain.Expense{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Description:   input.Description,
		Category:      input.Category,
		Amount:        input.Amount,
		PaymentMethod: input.PaymentMethod,
		CreatedBy:     createdBy,
		SpentAt:       spentAt,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	if err := s.producer.PublishExpenseCreated(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish expense.created event",
			slog.String("expense_id", e.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "expense recorded",
		slog.String("tenant_id", tenantID),
		slog.String("expense_id", e.ID),
		slog.Int64("amount", e.Amount),
	)
	return e, nil
}

// List returns the expenses spent in [from, to).
func (s *ExpenseService) List(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Expense, error) {
	if !from.Before(to) {
		return nil, apperrors.InvalidInput("from must be before to")
	}
	return s.repo.List(ctx, tenantID, from, to)
}

// Delete removes an expense.
func (s *ExpenseService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "expense deleted",
		slog.String("tenant_id", tenantID),
		slog.String("expense_id", id),
	)
	return nil
}

// ExportCSV writes the expenses spent in [from, to) as CSV.
func (s *ExpenseService) ExportCSV(ctx context.Context, tenantID string, from, to time.Time, w io.Writer) error {
	expenses, err := s.List(ctx, tenantID, from, to)
	if err != nil {
		return err
	}

	rows := make([]*expenseRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, &expenseRow{
			Date:          e.SpentAt.Format(time.DateOnly),
			Description:   e.Description,
			Category:      e.Category,
			PaymentMethod: e.PaymentMethod,
			Amount:        FormatAmount(e.Amount),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write expenses csv: %w", err)
	}
	return nil
}

// FormatAmount renders minor units as a decimal string, e.g. 12550 -> "125.50".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
