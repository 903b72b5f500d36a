package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// DashboardService summarizes sales and expenses.
type DashboardService struct {
	orders   repository.OrderRepository
	expenses repository.ExpenseRepository
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(orders repository.OrderRepository, expenses repository.ExpenseRepository) *DashboardService {
	return &DashboardService{orders: orders, expenses: expenses}
}

// Summary aggregates [from, to). Zero bounds default to the current UTC day.
func (s *DashboardService) Summary(ctx context.Context, tenantID string, from, to time.Time) (*domain.DashboardSummary, error) {
	if from.IsZero() && to.IsZero() {
		from, to = DayRange(time.Now().UTC())
	}
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return nil, apperrors.InvalidInput("from must be before to")
	}

	sales, err := s.orders.Summary(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("order summary: %w", err)
	}
	spent, err := s.expenses.Sum(ctx, tenantID, from, to, "")
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}

	byPayment := sales.RevenueByPayment
	if byPayment == nil {
		byPayment = map[string]int64{}
	}
	return &domain.DashboardSummary{
		From:             from,
		To:               to,
		OrderCount:       sales.OrderCount,
		Revenue:          sales.Revenue,
		RevenueByPayment: byPayment,
		ExpensesTotal:    spent,
		Net:              sales.Revenue - spent,
	}, nil
}

// DayRange returns the UTC day containing t as [start, start+24h).
func DayRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
