package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/raulancona/gourmetclick/pkg/database"
	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const insertOrderItemQuery = `
	INSERT INTO order_items (id, order_id, tenant_id, product_id, name, unit_price, quantity, modifiers, position)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Create inserts a new order and its items atomically within a transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	query := `
		INSERT INTO orders (id, tenant_id, order_number, status, order_type, payment_method, customer_name,
			table_number, delivery_address, notes, total, staff_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	ctx, end := database.TraceQuery(ctx, "orders.Create", query)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			o.ID,
			o.TenantID,
			o.OrderNumber,
			o.Status,
			o.OrderType,
			o.PaymentMethod,
			o.CustomerName,
			o.TableNumber,
			o.DeliveryAddress,
			o.Notes,
			o.Total,
			o.StaffID,
			o.CreatedAt,
			o.UpdatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err, "orders_tenant_number_key") {
				return apperrors.AlreadyExists("order", "order_number", o.OrderNumber)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertOrderItems(ctx, tx, o)
	})
	return err
}

// Update rewrites the order's metadata and replaces its items.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) (err error) {
	query := `
		UPDATE orders
		SET order_type = $1, payment_method = $2, customer_name = $3, table_number = $4,
			delivery_address = $5, notes = $6, total = $7, updated_at = $8
		WHERE id = $9 AND tenant_id = $10`

	ctx, end := database.TraceQuery(ctx, "orders.Update", query)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, query,
			o.OrderType,
			o.PaymentMethod,
			o.CustomerName,
			o.TableNumber,
			o.DeliveryAddress,
			o.Notes,
			o.Total,
			o.UpdatedAt,
			o.ID,
			o.TenantID,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFound("order", o.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		return insertOrderItems(ctx, tx, o)
	})
	return err
}

func insertOrderItems(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	for i, item := range o.Items {
		mods, err := marshalModifiers(item.Modifiers)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertOrderItemQuery,
			item.ID,
			o.ID,
			o.TenantID,
			item.ProductID,
			item.Name,
			item.UnitPrice,
			item.Quantity,
			mods,
			i,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func marshalModifiers(m []domain.Modifier) ([]byte, error) {
	if m == nil {
		m = []domain.Modifier{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal modifiers: %w", err)
	}
	return data, nil
}

// GetByID retrieves an order with its items in a single query.
func (r *OrderRepository) GetByID(ctx context.Context, tenantID, id string) (_ *domain.Order, err error) {
	query := `
		SELECT
			o.id, o.tenant_id, o.order_number, o.status, o.order_type, o.payment_method,
			o.customer_name, o.table_number, o.delivery_address, o.notes, o.total, o.staff_id,
			o.created_at, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'id', oi.id,
						'order_id', oi.order_id,
						'product_id', oi.product_id,
						'name', oi.name,
						'unit_price', oi.unit_price,
						'quantity', oi.quantity,
						'modifiers', oi.modifiers
					) ORDER BY oi.position
				) FILTER (WHERE oi.id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		WHERE o.id = $1 AND o.tenant_id = $2
		GROUP BY o.id`

	ctx, end := database.TraceQuery(ctx, "orders.GetByID", query)
	defer func() { end(err) }()

	var (
		o         domain.Order
		itemsJSON []byte
	)
	err = r.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&o.ID,
		&o.TenantID,
		&o.OrderNumber,
		&o.Status,
		&o.OrderType,
		&o.PaymentMethod,
		&o.CustomerName,
		&o.TableNumber,
		&o.DeliveryAddress,
		&o.Notes,
		&o.Total,
		&o.StaffID,
		&o.CreatedAt,
		&o.UpdatedAt,
		&itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "null" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}

	return &o, nil
}

// List returns the tenant's orders matching the filter, newest first, with
// the total count.
func (r *OrderRepository) List(ctx context.Context, tenantID string, filter repository.OrderFilter) ([]domain.Order, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argIndex := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, order_number, status, order_type, payment_method, customer_name,
			table_number, delivery_address, notes, total, staff_id, created_at, updated_at,
			count(*) OVER() AS total_count
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID,
			&o.TenantID,
			&o.OrderNumber,
			&o.Status,
			&o.OrderType,
			&o.PaymentMethod,
			&o.CustomerName,
			&o.TableNumber,
			&o.DeliveryAddress,
			&o.Notes,
			&o.Total,
			&o.StaffID,
			&o.CreatedAt,
			&o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if len(orders) == 0 {
		return orders, totalCount, nil
	}

	// Batch-load items for the page.
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	itemRows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, name, unit_price, quantity, modifiers
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY position`, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("batch load order items: %w", err)
	}
	defer itemRows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orders))
	for itemRows.Next() {
		var (
			item domain.OrderItem
			mods []byte
		)
		if err := itemRows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.UnitPrice,
			&item.Quantity,
			&mods,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order item: %w", err)
		}
		if err := unmarshalModifiers(mods, &item.Modifiers); err != nil {
			return nil, 0, err
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order item rows: %w", err)
	}

	for i := range orders {
		if items, ok := byOrder[orders[i].ID]; ok {
			orders[i].Items = items
		} else {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, totalCount, nil
}

func unmarshalModifiers(data []byte, dst *[]domain.Modifier) error {
	*dst = []domain.Modifier{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal modifiers: %w", err)
	}
	return nil
}

// UpdateStatus changes the status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4`

	ct, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id, tenantID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

// SumCashSales totals non-cancelled cash orders created in [from, to).
func (r *OrderRepository) SumCashSales(ctx context.Context, tenantID string, from, to time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(total), 0)
		FROM orders
		WHERE tenant_id = $1 AND payment_method = $2 AND status <> $3
			AND created_at >= $4 AND created_at < $5`

	var sum int64
	err := r.pool.QueryRow(ctx, query, tenantID, domain.PaymentCash, domain.OrderStatusCancelled, from, to).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum cash sales: %w", err)
	}
	return sum, nil
}

// Summary aggregates non-cancelled orders created in [from, to) per payment method.
func (r *OrderRepository) Summary(ctx context.Context, tenantID string, from, to time.Time) (*repository.SalesSummary, error) {
	query := `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total), 0)
		FROM orders
		WHERE tenant_id = $1 AND status <> $2 AND created_at >= $3 AND created_at < $4
		GROUP BY payment_method`

	rows, err := r.pool.Query(ctx, query, tenantID, domain.OrderStatusCancelled, from, to)
	if err != nil {
		return nil, fmt.Errorf("summarize orders: %w", err)
	}
	defer rows.Close()

	summary := &repository.SalesSummary{RevenueByPayment: make(map[string]int64)}
	for rows.Next() {
		var (
			method string
			count  int
			total  int64
		)
		if err := rows.Scan(&method, &count, &total); err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		summary.OrderCount += count
		summary.Revenue += total
		summary.RevenueByPayment[method] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order summary: %w", err)
	}
	return summary, nil
}
