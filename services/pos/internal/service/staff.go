package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/ratelimit"
	"github.com/raulancona/gourmetclick/pkg/validator"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// CreateStaffInput holds the fields of a new employee.
type CreateStaffInput struct {
	Name string `json:"name" validate:"required,max=80"`
	Role string `json:"role" validate:"required,oneof=admin cashier waiter kitchen"`
	PIN  string `json:"pin" validate:"required,pin"`
}

// UpdateStaffInput changes an employee. An empty PIN keeps the current one.
type UpdateStaffInput struct {
	Name   string `json:"name" validate:"required,max=80"`
	Role   string `json:"role" validate:"required,oneof=admin cashier waiter kitchen"`
	PIN    string `json:"pin" validate:"omitempty,pin"`
	Active *bool  `json:"active"`
}

// StaffService manages employees and their PIN sessions.
type StaffService struct {
	staff      repository.StaffRepository
	sessions   repository.PINSessionRepository
	terminals  *ratelimit.Keyed
	tenants    *ratelimit.Keyed
	sessionTTL time.Duration
	bcryptCost int
	logger     *slog.Logger
}

// NewStaffService creates a new staff service. VerifyPIN attempts are limited
// per terminal by terminals and across the whole tenant by tenants, since the
// terminal id is chosen by the client.
func NewStaffService(
	staff repository.StaffRepository,
	sessions repository.PINSessionRepository,
	terminals *ratelimit.Keyed,
	tenants *ratelimit.Keyed,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *StaffService {
	return &StaffService{
		staff:      staff,
		sessions:   sessions,
		terminals:  terminals,
		tenants:    tenants,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
}

// List returns the tenant's employees.
func (s *StaffService) List(ctx context.Context, tenantID string) ([]domain.Staff, error) {
	return s.staff.List(ctx, tenantID)
}

// Create adds an employee. PINs are unique within a tenant.
func (s *StaffService) Create(ctx context.Context, tenantID string, input CreateStaffInput) (*domain.Staff, error) {
	if !validator.IsValidPIN(input.PIN) {
		return nil, apperrors.InvalidInput("pin must be 4 to 6 digits")
	}
	if !domain.IsValidStaffRole(input.Role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", input.Role))
	}
	if err := s.ensurePINFree(ctx, tenantID, "", input.PIN); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), s.bcryptCost)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("hash pin: %w", err))
	}

	member := &domain.Staff{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      input.Name,
		Role:      input.Role,
		PINHash:   string(hash),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "staff member created",
		slog.String("tenant_id", tenantID),
		slog.String("staff_id", member.ID),
		slog.String("role", member.Role),
	)
	return member, nil
}

// Update changes an employee's name, role, PIN or active flag.
func (s *StaffService) Update(ctx context.Context, tenantID, id string, input UpdateStaffInput) (*domain.Staff, error) {
	if input.PIN != "" && !validator.IsValidPIN(input.PIN) {
		return nil, apperrors.InvalidInput("pin must be 4 to 6 digits")
	}
	if !domain.IsValidStaffRole(input.Role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", input.Role))
	}

	member, err := s.staff.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if input.PIN != "" {
		if err := s.ensurePINFree(ctx, tenantID, id, input.PIN); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), s.bcryptCost)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("hash pin: %w", err))
		}
		member.PINHash = string(hash)
	}
	member.Name = input.Name
	member.Role = input.Role
	if input.Active != nil {
		member.Active = *input.Active
	}

	if err := s.staff.Update(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// Delete removes a staff member.
func (s *StaffService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.staff.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "staff member deleted",
		slog.String("tenant_id", tenantID),
		slog.String("staff_id", id),
	)
	return nil
}

// ensurePINFree fails with AlreadyExists when another employee of the tenant
// already uses pin. Hashes are salted, so each one is compared.
func (s *StaffService) ensurePINFree(ctx context.Context, tenantID, excludeID, pin string) error {
	members, err := s.staff.List(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list staff: %w", err)
	}
	for _, m := range members {
		if m.ID == excludeID {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(m.PINHash), []byte(pin)) == nil {
			return apperrors.AlreadyExists("staff", "pin", "****")
		}
	}
	return nil
}

// VerifyPIN unlocks a terminal: the matching active employee gets a new PIN
// session. Attempts are rate-limited per tenant and terminal.
func (s *StaffService) VerifyPIN(ctx context.Context, tenantID, terminalID, pin string) (*domain.PINSession, error) {
	key := tenantID + ":" + terminalID
	if !s.tenants.Allow(tenantID) || !s.terminals.Allow(key) {
		s.logger.WarnContext(ctx, "pin attempts rate limited",
			slog.String("tenant_id", tenantID),
			slog.String("terminal_id", terminalID),
		)
		return nil, apperrors.TooManyRequests("too many PIN attempts, please wait")
	}
	if !validator.IsValidPIN(pin) {
		return nil, apperrors.InvalidInput("pin must be 4 to 6 digits")
	}

	members, err := s.staff.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	var match *domain.Staff
	for i := range members {
		m := &members[i]
		if !m.Active {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(m.PINHash), []byte(pin)) == nil {
			match = m
			break
		}
	}
	if match == nil {
		return nil, apperrors.Unauthorized("invalid PIN")
	}

	now := time.Now().UTC()
	session := &domain.PINSession{
		Token:      uuid.NewString(),
		TenantID:   tenantID,
		TerminalID: terminalID,
		StaffID:    match.ID,
		StaffName:  match.Name,
		Role:       match.Role,
		StartedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save pin session: %w", err)
	}
	s.terminals.Reset(key)

	s.logger.InfoContext(ctx, "pin session started",
		slog.String("tenant_id", tenantID),
		slog.String("terminal_id", terminalID),
		slog.String("staff_id", match.ID),
	)
	return session, nil
}

// GetSession resolves a PIN session token. Sessions of another tenant are
// reported as missing.
func (s *StaffService) GetSession(ctx context.Context, tenantID, token string) (*domain.PINSession, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("missing staff session")
	}
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("staff session expired")
		}
		return nil, err
	}
	if session.TenantID != tenantID {
		return nil, apperrors.Unauthorized("staff session expired")
	}
	return session, nil
}

// EndSession locks the terminal again.
func (s *StaffService) EndSession(ctx context.Context, tenantID, token string) error {
	session, err := s.GetSession(ctx, tenantID, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete pin session: %w", err)
	}
	s.logger.InfoContext(ctx, "pin session ended",
		slog.String("tenant_id", tenantID),
		slog.String("staff_id", session.StaffID),
	)
	return nil
}
