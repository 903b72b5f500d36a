package domain

import "time"

// Cash session statuses.
const (
	CashSessionOpen   = "open"
	CashSessionClosed = "closed"
)

// CashSession is one shift of the cash drawer.
type CashSession struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	OpenedBy       string     `json:"opened_by"`
	OpeningAmount  int64      `json:"opening_amount"`
	OpenedAt       time.Time  `json:"opened_at"`
	ClosedBy       string     `json:"closed_by,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CountedAmount  int64      `json:"counted_amount"`
	ExpectedAmount int64      `json:"expected_amount"`
	Difference     int64      `json:"difference"`
	Status         string     `json:"status"`
}

// Close settles the session: expected is the opening amount plus cash sales
// minus cash expenses, and difference is counted minus expected.
func (s *CashSession) Close(closedBy string, counted, cashSales, cashExpenses int64, at time.Time) {
	s.ClosedBy = closedBy
	s.ClosedAt = &at
	s.CountedAmount = counted
	s.ExpectedAmount = s.OpeningAmount + cashSales - cashExpenses
	s.Difference = counted - s.ExpectedAmount
	s.Status = CashSessionClosed
}

// Expense is money spent out of the business.
type Expense struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	CreatedBy     string    `json:"created_by,omitempty"`
	SpentAt       time.Time `json:"spent_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// DashboardSummary aggregates sales and expenses over a period.
type DashboardSummary struct {
	From             time.Time        `json:"from"`
	To               time.Time        `json:"to"`
	OrderCount       int              `json:"order_count"`
	Revenue          int64            `json:"revenue"`
	RevenueByPayment map[string]int64 `json:"revenue_by_payment"`
	ExpensesTotal    int64            `json:"expenses_total"`
	Net              int64            `json:"net"`
}
