package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/raulancona/gourmetclick/pkg/database"
	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

// StaffRepository implements repository.StaffRepository using PostgreSQL.
type StaffRepository struct {
	pool database.DBTX
}

// NewStaffRepository creates a new PostgreSQL-backed staff repository.
func NewStaffRepository(pool database.DBTX) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// Create inserts a new staff member.
func (r *StaffRepository) Create(ctx context.Context, s *domain.Staff) error {
	query := `
		INSERT INTO staff (id, tenant_id, name, role, pin_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query, s.ID, s.TenantID, s.Name, s.Role, s.PINHash, s.Active, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

// Update saves a staff member, including its PIN hash.
func (r *StaffRepository) Update(ctx context.Context, s *domain.Staff) error {
	query := `
		UPDATE staff
		SET name = $1, role = $2, pin_hash = $3, active = $4
		WHERE id = $5 AND tenant_id = $6`

	ct, err := r.pool.Exec(ctx, query, s.Name, s.Role, s.PINHash, s.Active, s.ID, s.TenantID)
	if err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("staff", s.ID)
	}
	return nil
}

// Delete removes a staff member of the tenant.
func (r *StaffRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM staff WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("staff", id)
	}
	return nil
}

// GetByID retrieves a staff member of the tenant.
func (r *StaffRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Staff, error) {
	query := `
		SELECT id, tenant_id, name, role, pin_hash, active, created_at
		FROM staff
		WHERE id = $1 AND tenant_id = $2`

	var s domain.Staff
	err := r.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&s.ID, &s.TenantID, &s.Name, &s.Role, &s.PINHash, &s.Active, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("staff", id)
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return &s, nil
}

// List returns every employee of the tenant, PIN hashes included.
func (r *StaffRepository) List(ctx context.Context, tenantID string) ([]domain.Staff, error) {
	query := `
		SELECT id, tenant_id, name, role, pin_hash, active, created_at
		FROM staff
		WHERE tenant_id = $1
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	staff := make([]domain.Staff, 0)
	for rows.Next() {
		var s domain.Staff
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Role, &s.PINHash, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		staff = append(staff, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff: %w", err)
	}
	return staff, nil
}
