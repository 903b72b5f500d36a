package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/raulancona/gourmetclick/pkg/database"
	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

// CashSessionRepository implements repository.CashSessionRepository using PostgreSQL.
type CashSessionRepository struct {
	pool database.DBTX
}

// NewCashSessionRepository creates a new PostgreSQL-backed cash session repository.
func NewCashSessionRepository(pool database.DBTX) *CashSessionRepository {
	return &CashSessionRepository{pool: pool}
}

const cashSessionColumns = `id, tenant_id, opened_by, opening_amount, opened_at, closed_by, closed_at,
	counted_amount, expected_amount, difference, status`

// Create inserts an open session. The partial unique index on open sessions
// turns a second open into AlreadyExists.
func (r *CashSessionRepository) Create(ctx context.Context, s *domain.CashSession) error {
	query := `
		INSERT INTO cash_sessions (id, tenant_id, opened_by, opening_amount, opened_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, s.ID, s.TenantID, s.OpenedBy, s.OpeningAmount, s.OpenedAt, s.Status)
	if err != nil {
		if database.IsUniqueViolation(err, "cash_sessions_one_open") {
			return apperrors.AlreadyExists("cash session", "status", domain.CashSessionOpen)
		}
		return fmt.Errorf("insert cash session: %w", err)
	}
	return nil
}

// Close stores the closing figures, guarded on the session still being open.
func (r *CashSessionRepository) Close(ctx context.Context, s *domain.CashSession) error {
	query := `
		UPDATE cash_sessions
		SET closed_by = $1, closed_at = $2, counted_amount = $3, expected_amount = $4,
			difference = $5, status = $6
		WHERE id = $7 AND tenant_id = $8 AND status = $9`

	ct, err := r.pool.Exec(ctx, query,
		s.ClosedBy, s.ClosedAt, s.CountedAmount, s.ExpectedAmount, s.Difference, s.Status,
		s.ID, s.TenantID, domain.CashSessionOpen,
	)
	if err != nil {
		return fmt.Errorf("close cash session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict("cash session is no longer open")
	}
	return nil
}

// GetOpen returns the tenant's open session, or NotFound.
func (r *CashSessionRepository) GetOpen(ctx context.Context, tenantID string) (*domain.CashSession, error) {
	query := `SELECT ` + cashSessionColumns + ` FROM cash_sessions WHERE tenant_id = $1 AND status = $2`

	s, err := scanCashSession(r.pool.QueryRow(ctx, query, tenantID, domain.CashSessionOpen))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("open cash session", tenantID)
		}
		return nil, fmt.Errorf("get open cash session: %w", err)
	}
	return s, nil
}

// List returns sessions newest first with the total count.
func (r *CashSessionRepository) List(ctx context.Context, tenantID string, params pagination.Params) ([]domain.CashSession, int, error) {
	query := `
		SELECT ` + cashSessionColumns + `, count(*) OVER() AS total_count
		FROM cash_sessions
		WHERE tenant_id = $1
		ORDER BY opened_at DESC
		LIMIT $2 OFFSET $3`

	limit := params.PerPage
	if limit <= 0 {
		limit = pagination.DefaultPerPage
	}
	offset := 0
	if params.Page > 1 {
		offset = (params.Page - 1) * limit
	}

	rows, err := r.pool.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list cash sessions: %w", err)
	}
	defer rows.Close()

	var total int
	sessions := make([]domain.CashSession, 0)
	for rows.Next() {
		var (
			s        domain.CashSession
			closedAt *time.Time
		)
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.OpenedBy, &s.OpeningAmount, &s.OpenedAt, &s.ClosedBy, &closedAt,
			&s.CountedAmount, &s.ExpectedAmount, &s.Difference, &s.Status, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan cash session: %w", err)
		}
		s.ClosedAt = closedAt
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate cash sessions: %w", err)
	}
	return sessions, total, nil
}

func scanCashSession(row pgx.Row) (*domain.CashSession, error) {
	var s domain.CashSession
	if err := row.Scan(
		&s.ID, &s.TenantID, &s.OpenedBy, &s.OpeningAmount, &s.OpenedAt, &s.ClosedBy, &s.ClosedAt,
		&s.CountedAmount, &s.ExpectedAmount, &s.Difference, &s.Status,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
