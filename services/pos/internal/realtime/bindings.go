package realtime

// Watched tables.
const (
	TableOrders       = "orders"
	TableOrderItems   = "order_items"
	TableProducts     = "products"
	TableCategories   = "categories"
	TableCashSessions = "cash_sessions"
	TableExpenses     = "expenses"
	TableStaff        = "staff"
	TableTenants      = "tenants"
)

// Binding ties a watched table to the column holding its tenant id.
type Binding struct {
	Table  string
	Column string
}

// Filter renders the server-side predicate for tenantID.
func (b Binding) Filter(tenantID string) string {
	return b.Column + "=eq." + tenantID
}

// DefaultBindings is the fixed set of tables every tenant channel watches.
// The tenants table is keyed by its own id.
func DefaultBindings() []Binding {
	return []Binding{
		{Table: TableOrders, Column: "tenant_id"},
		{Table: TableOrderItems, Column: "tenant_id"},
		{Table: TableProducts, Column: "tenant_id"},
		{Table: TableCategories, Column: "tenant_id"},
		{Table: TableCashSessions, Column: "tenant_id"},
		{Table: TableExpenses, Column: "tenant_id"},
		{Table: TableStaff, Column: "tenant_id"},
		{Table: TableTenants, Column: "id"},
	}
}

// IsWatched reports whether table is in bindings.
func IsWatched(bindings []Binding, table string) bool {
	for _, b := range bindings {
		if b.Table == table {
			return true
		}
	}
	return false
}
