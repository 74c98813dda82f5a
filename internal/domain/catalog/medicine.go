package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested medicine does not exist.
var ErrNotFound = errors.New("medicine not found")

// Medicine represents a catalog item available for purchase.
type Medicine struct {
	ID                   string
	Name                 string
	Dosage               string
	Type                 string
	Description          string
	Price                decimal.Decimal
	WholesalePrice       decimal.Decimal
	Stock                int
	PromoPercent         int
	RequiresPrescription bool
	ExpiresAt            *time.Time
	ImageURL             string
}

// StockInfo is the ledger view of a single medicine: enough to validate a
// cart line and to name the product in error messages.
type StockInfo struct {
	Name  string
	Stock int
}

// Filter narrows catalog listings. Zero value means no filtering.
type Filter struct {
	// Search matches case-insensitively against name and description.
	Search string
	// Type restricts results to a single medicine type.
	Type string
}

// Repository defines read operations for the medicine catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Medicine, error)
	GetByID(ctx context.Context, id string) (*Medicine, error)
	GetByIDs(ctx context.Context, ids []string) ([]Medicine, error)
}

// Ledger is the authoritative stock-quantity state for medicines.
type Ledger interface {
	// GetStock returns the name and live stock for each requested ID.
	// Every requested ID must be present in the result; a missing medicine
	// yields an error wrapping ErrNotFound.
	GetStock(ctx context.Context, ids []string) (map[string]StockInfo, error)

	// Decrement reduces stock by amount and returns the new value. The write
	// is conditional on sufficient stock: when the live stock is below
	// amount, no row is changed and ErrInsufficientStock is returned, so
	// stock can never go negative.
	Decrement(ctx context.Context, id string, amount int) (int, error)

	// AdjustStock applies a signed delta (admin restock or correction) and
	// returns the new value. Deltas that would take stock below zero fail.
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
}

// ErrInsufficientStock is returned by Ledger.Decrement when the live stock is
// below the requested amount. The checkout orchestrator validates before
// writing, so hitting this error means a concurrent checkout won the race.
var ErrInsufficientStock = errors.New("insufficient stock")
