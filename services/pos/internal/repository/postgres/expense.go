package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/raulancona/gourmetclick/pkg/database"
	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

// ExpenseRepository implements repository.ExpenseRepository using PostgreSQL.
type ExpenseRepository struct {
	pool database.DBTX
}

// NewExpenseRepository creates a new PostgreSQL-backed expense repository.
func NewExpenseRepository(pool database.DBTX) *ExpenseRepository {
	return &ExpenseRepository{pool: pool}
}

// Create inserts a new expense.
func (r *ExpenseRepository) Create(ctx context.Context, e *domain.Expense) error {
	query := `
		INSERT INTO expenses (id, tenant_id, description, category, amount, payment_method, created_by, spent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TenantID, e.Description, e.Category, e.Amount, e.PaymentMethod, e.CreatedBy, e.SpentAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

// Delete removes an expense of the tenant.
func (r *ExpenseRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("expense", id)
	}
	return nil
}

// List returns expenses spent in [from, to), oldest first.
func (r *ExpenseRepository) List(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Expense, error) {
	query := `
		SELECT id, tenant_id, description, category, amount, payment_method, created_by, spent_at, created_at
		FROM expenses
		WHERE tenant_id = $1 AND spent_at >= $2 AND spent_at < $3
		ORDER BY spent_at`

	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.Description, &e.Category, &e.Amount, &e.PaymentMethod,
			&e.CreatedBy, &e.SpentAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// Sum totals expenses spent in [from, to). An empty paymentMethod matches all.
func (r *ExpenseRepository) Sum(ctx context.Context, tenantID string, from, to time.Time, paymentMethod string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE tenant_id = $1 AND spent_at >= $2 AND spent_at < $3
			AND ($4 = '' OR payment_method = $4)`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, tenantID, from, to, paymentMethod).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum expenses: %w", err)
	}
	return sum, nil
}
