package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viafarma/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, total, status)
		VALUES ($1, $2, $3, $4)`

	getOrderSQL = `SELECT id, user_id, total, status, created_at
		FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, user_id, total, status, created_at
		FROM orders WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`

	listItemsSQL = `SELECT order_id, medicine_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1)`

	// The pending precondition is enforced in the WHERE clause, so a
	// concurrent confirm/cancel cannot double-apply.
	setStatusSQL = `UPDATE orders SET status = $2
		WHERE id = $1 AND status = 'pending'`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
//
// CreateOrder and AddItems are deliberately separate statements with no
// surrounding transaction; the checkout workflow documents the orphaned
// pending order that can result when the second write fails.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateOrder persists the order header.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL, o.ID, o.UserID, o.Total, string(o.Status))
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// AddItems bulk-inserts the items for an existing order via COPY.
func (r *OrderRepository) AddItems(ctx context.Context, orderID string, items []order.Item) error {
	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = []any{orderID, item.MedicineID, item.Quantity, item.UnitPrice}
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "medicine_id", "quantity", "unit_price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("adding items to order %q: %w", orderID, err)
	}
	return nil
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	items, err := r.loadItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return &o, nil
}

// List returns orders newest first with their items, optionally filtered by
// status. An empty status means all orders.
func (r *OrderRepository) List(ctx context.Context, status order.Status) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// SetStatus moves a pending order to the given status.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, setStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("setting status of order %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish "no such order" from "order is no longer pending".
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return errors.Wrapf(order.ErrNotFound, "order %q", id)
	}
	return order.ErrNotPending
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}

	out := make(map[string][]order.Item, len(orderIDs))
	var (
		orderID string
		item    order.Item
	)
	if _, err := pgx.ForEachRow(rows,
		[]any{&orderID, &item.MedicineID, &item.Quantity, &item.UnitPrice},
		func() error {
			out[orderID] = append(out[orderID], item)
			return nil
		},
	); err != nil {
		return nil, fmt.Errorf("scanning order items: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}
