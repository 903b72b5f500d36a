package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

var fixedNow = time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)

type cashFixture struct {
	svc      *CashService
	sessions *mockCashSessionRepository
	orders   *mockOrderRepository
	expenses *mockExpenseRepository
}

func newCashFixture() *cashFixture {
	f := &cashFixture{
		sessions: new(mockCashSessionRepository),
		orders:   new(mockOrderRepository),
		expenses: new(mockExpenseRepository),
	}
	f.svc = NewCashService(f.sessions, f.orders, f.expenses, newTestProducer(), newTestLogger())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func TestCashOpen(t *testing.T) {
	f := newCashFixture()
	ctx := context.Background()
	f.sessions.On("Create", ctx, mock.AnythingOfType("*domain.CashSession")).Return(nil)

	s, err := f.svc.Open(ctx, testTenant, "staff-1", OpenCashInput{OpeningAmount: 50000})

	require.NoError(t, err)
	assert.Equal(t, domain.CashSessionOpen, s.Status)
	assert.Equal(t, int64(50000), s.OpeningAmount)
	assert.Equal(t, fixedNow, s.OpenedAt)
	assert.Equal(t, "staff-1", s.OpenedBy)
}

func TestCashOpen_AlreadyOpen(t *testing.T) {
	f := newCashFixture()
	ctx := context.Background()
	f.sessions.On("Create", ctx, mock.Anything).Return(apperrors.AlreadyExists("cash session", "status", "open"))

	_, err := f.svc.Open(ctx, testTenant, "staff-1", OpenCashInput{OpeningAmount: 0})

	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestCashOpen_NegativeAmount(t *testing.T) {
	f := newCashFixture()

	_, err := f.svc.Open(context.Background(), testTenant, "staff-1", OpenCashInput{OpeningAmount: -1})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCashClose_ComputesExpectedAndDifference(t *testing.T) {
	f := newCashFixture()
	ctx := context.Background()
	openedAt := fixedNow.Add(-8 * time.Hour)
	open := &domain.CashSession{ID: "cs-1", TenantID: testTenant, OpeningAmount: 50000, OpenedAt: openedAt, Status: domain.CashSessionOpen}
	f.sessions.On("GetOpen", ctx, testTenant).Return(open, nil)
	f.orders.On("SumCashSales", ctx, testTenant, openedAt, fixedNow).Return(int64(120000), nil)
	f.expenses.On("Sum", ctx, testTenant, openedAt, fixedNow, domain.PaymentCash).Return(int64(15000), nil)
	f.sessions.On("Close", ctx, open).Return(nil)

	s, err := f.svc.Close(ctx, testTenant, "staff-2", CloseCashInput{CountedAmount: 154000})

	require.NoError(t, err)
	assert.Equal(t, domain.CashSessionClosed, s.Status)
	assert.Equal(t, int64(155000), s.ExpectedAmount)
	assert.Equal(t, int64(-1000), s.Difference)
	assert.Equal(t, "staff-2", s.ClosedBy)
	require.NotNil(t, s.ClosedAt)
	assert.Equal(t, fixedNow, *s.ClosedAt)
	f.sessions.AssertExpectations(t)
}

func TestCashClose_NothingOpen(t *testing.T) {
	f := newCashFixture()
	ctx := context.Background()
	f.sessions.On("GetOpen", ctx, testTenant).Return(nil, apperrors.NotFound("cash session", "open"))

	_, err := f.svc.Close(ctx, testTenant, "staff-2", CloseCashInput{CountedAmount: 0})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCashHistory(t *testing.T) {
	f := newCashFixture()
	ctx := context.Background()
	params := pagination.Params{Page: 1, PerPage: 20}
	f.sessions.On("List", ctx, testTenant, params).Return([]domain.CashSession{{ID: "cs-1"}}, 1, nil)

	sessions, total, err := f.svc.History(ctx, testTenant, params)

	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, total)
}

func TestExpenseCreate(t *testing.T) {
	repo := new(mockExpenseRepository)
	svc := NewExpenseService(repo, newTestProducer(), newTestLogger())
	ctx := context.Background()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Expense")).Return(nil)

	e, err := svc.Create(ctx, testTenant, "staff-1", CreateExpenseInput{
		Description: "Tortillas", Category: "insumos", Amount: 8000, PaymentMethod: domain.PaymentCash,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(8000), e.Amount)
	assert.False(t, e.SpentAt.IsZero())
}

func TestExpenseCreate_Invalid(t *testing.T) {
	svc := NewExpenseService(new(mockExpenseRepository), newTestProducer(), newTestLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, testTenant, "", CreateExpenseInput{Description: "x", Amount: 0, PaymentMethod: domain.PaymentCash})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Create(ctx, testTenant, "", CreateExpenseInput{Description: "x", Amount: 100, PaymentMethod: "bitcoin"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestExpenseExportCSV(t *testing.T) {
	repo := new(mockExpenseRepository)
	svc := NewExpenseService(repo, newTestProducer(), newTestLogger())
	ctx := context.Background()
	from, to := DayRange(fixedNow)
	repo.On("List", ctx, testTenant, from, to).Return([]domain.Expense{
		{Description: "Gas", Category: "servicios", Amount: 45050, PaymentMethod: domain.PaymentCard, SpentAt: fixedNow},
	}, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, testTenant, from, to, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"date", "description", "category", "payment_method", "amount"}, records[0])
	assert.Equal(t, []string{"2026-03-14", "Gas", "servicios", "card", "450.50"}, records[1])
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "125.50", FormatAmount(12550))
	assert.Equal(t, "-3.20", FormatAmount(-320))
}

func TestDashboardSummary(t *testing.T) {
	orders := new(mockOrderRepository)
	expenses := new(mockExpenseRepository)
	svc := NewDashboardService(orders, expenses)
	ctx := context.Background()
	from, to := DayRange(fixedNow)
	orders.On("Summary", ctx, testTenant, from, to).Return(&repository.SalesSummary{
		OrderCount:       12,
		Revenue:          300000,
		RevenueByPayment: map[string]int64{domain.PaymentCash: 200000, domain.PaymentCard: 100000},
	}, nil)
	expenses.On("Sum", ctx, testTenant, from, to, "").Return(int64(45000), nil)

	s, err := svc.Summary(ctx, testTenant, from, to)

	require.NoError(t, err)
	assert.Equal(t, 12, s.OrderCount)
	assert.Equal(t, int64(255000), s.Net)
	assert.Equal(t, int64(45000), s.ExpensesTotal)
	assert.Equal(t, int64(200000), s.RevenueByPayment[domain.PaymentCash])
}

func TestDashboardSummary_InvalidRange(t *testing.T) {
	svc := NewDashboardService(new(mockOrderRepository), new(mockExpenseRepository))

	_, err := svc.Summary(context.Background(), testTenant, fixedNow, fixedNow.Add(-time.Hour))

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDayRange(t *testing.T) {
	from, to := DayRange(fixedNow)

	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}
