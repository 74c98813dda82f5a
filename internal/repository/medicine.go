package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viafarma/storefront/internal/domain/catalog"
)

const (
	medicineColumns = `id, name, dosage, type, description, price, wholesale_price,
		stock, promo_percent, requires_prescription, expires_at, image_url`

	listMedicinesSQL = `SELECT ` + medicineColumns + ` FROM medicines
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR type = $2)
		ORDER BY name`

	getMedicineByIDSQL = `SELECT ` + medicineColumns + ` FROM medicines WHERE id = $1`

	getMedicinesByIDsSQL = `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ANY($1)`

	getStockSQL = `SELECT id, name, stock FROM medicines WHERE id = ANY($1)`

	// The decrement is conditional on sufficient stock, so two checkouts
	// racing past validation cannot drive the column negative: the loser's
	// UPDATE matches no row.
	decrementStockSQL = `UPDATE medicines SET stock = stock - $2
		WHERE id = $1 AND stock >= $2 RETURNING stock`

	adjustStockSQL = `UPDATE medicines SET stock = stock + $2
		WHERE id = $1 AND stock + $2 >= 0 RETURNING stock`
)

var (
	_ catalog.Repository = (*MedicineRepository)(nil)
	_ catalog.Ledger     = (*MedicineRepository)(nil)
)

// MedicineRepository implements the catalog repository and the stock ledger
// backed by PostgreSQL. Both live on the medicines table, so one type serves
// both interfaces.
type MedicineRepository struct {
	pool *pgxpool.Pool
}

// NewMedicineRepository returns a MedicineRepository that uses the given pool.
func NewMedicineRepository(pool *pgxpool.Pool) *MedicineRepository {
	return &MedicineRepository{pool: pool}
}

// List returns medicines matching the filter, ordered by name.
func (r *MedicineRepository) List(ctx context.Context, f catalog.Filter) ([]catalog.Medicine, error) {
	rows, err := r.pool.Query(ctx, listMedicinesSQL, f.Search, f.Type)
	if err != nil {
		return nil, fmt.Errorf("listing medicines: %w", err)
	}
	return pgx.CollectRows(rows, scanMedicine)
}

// GetByID returns a single medicine by its identifier.
func (r *MedicineRepository) GetByID(ctx context.Context, id string) (*catalog.Medicine, error) {
	rows, err := r.pool.Query(ctx, getMedicineByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting medicine %q: %w", id, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMedicine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting medicine %q: %w", id, err)
	}
	return &m, nil
}

// GetByIDs returns medicines matching any of the given IDs.
func (r *MedicineRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Medicine, error) {
	rows, err := r.pool.Query(ctx, getMedicinesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting medicines by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanMedicine)
}

// GetStock returns the name and live stock for each requested ID. Every
// requested ID must resolve; a missing one yields catalog.ErrNotFound.
func (r *MedicineRepository) GetStock(ctx context.Context, ids []string) (map[string]catalog.StockInfo, error) {
	rows, err := r.pool.Query(ctx, getStockSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting stock: %w", err)
	}

	out := make(map[string]catalog.StockInfo, len(ids))
	var (
		id    string
		name  string
		stock int
	)
	if _, err := pgx.ForEachRow(rows, []any{&id, &name, &stock}, func() error {
		out[id] = catalog.StockInfo{Name: name, Stock: stock}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("scanning stock rows: %w", err)
	}

	for _, want := range ids {
		if _, ok := out[want]; !ok {
			return nil, errors.Wrapf(catalog.ErrNotFound, "medicine %q", want)
		}
	}
	return out, nil
}

// Decrement conditionally reduces stock and returns the new value. When the
// live stock is below amount the UPDATE matches no row and
// catalog.ErrInsufficientStock is returned; stock never goes negative.
func (r *MedicineRepository) Decrement(ctx context.Context, id string, amount int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, decrementStockSQL, id, amount).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errors.Wrapf(catalog.ErrInsufficientStock, "medicine %q", id)
		}
		return 0, fmt.Errorf("decrementing stock for %q: %w", id, err)
	}
	return stock, nil
}

// AdjustStock applies a signed delta and returns the new value. Deltas that
// would take stock below zero match no row and fail.
func (r *MedicineRepository) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, adjustStockSQL, id, delta).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errors.Wrapf(catalog.ErrInsufficientStock, "medicine %q", id)
		}
		return 0, fmt.Errorf("adjusting stock for %q: %w", id, err)
	}
	return stock, nil
}

func scanMedicine(row pgx.CollectableRow) (catalog.Medicine, error) {
	var m catalog.Medicine
	err := row.Scan(
		&m.ID, &m.Name, &m.Dosage, &m.Type, &m.Description,
		&m.Price, &m.WholesalePrice, &m.Stock, &m.PromoPercent,
		&m.RequiresPrescription, &m.ExpiresAt, &m.ImageURL,
	)
	return m, err
}
