package domain

import "time"

// Staff roles.
const (
	StaffRoleAdmin   = "admin"
	StaffRoleCashier = "cashier"
	StaffRoleWaiter  = "waiter"
	StaffRoleKitchen = "kitchen"
)

// IsValidStaffRole checks a staff role string.
func IsValidStaffRole(role string) bool {
	switch role {
	case StaffRoleAdmin, StaffRoleCashier, StaffRoleWaiter, StaffRoleKitchen:
		return true
	}
	return false
}

// Staff is an employee who unlocks a terminal with a PIN.
type Staff struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	PINHash   string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PINSession is the employee hand-off: a token bound to the staff member who
// unlocked a terminal.
type PINSession struct {
	Token      string    `json:"token"`
	TenantID   string    `json:"tenant_id"`
	TerminalID string    `json:"terminal_id"`
	StaffID    string    `json:"staff_id"`
	StaffName  string    `json:"staff_name"`
	Role       string    `json:"role"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
