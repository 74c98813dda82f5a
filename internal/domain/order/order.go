package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Checkout creates orders as
// pending; only an admin operator moves them to completed or cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Sentinel errors for order lookups and status transitions.
var (
	ErrNotFound = errors.New("order not found")
	// ErrNotPending is returned when a status mutation targets an order that
	// is no longer pending. Completed and cancelled are terminal.
	ErrNotPending = errors.New("order is not pending")
)

// Order is the aggregate header. Items are owned by the aggregate and cannot
// outlive it.
type Order struct {
	ID        string
	UserID    string
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
	Items     []Item
}

// Item is a single order line. The unit price is a snapshot of the resolved
// price at checkout time and never changes afterwards, regardless of later
// catalog price or promo edits.
type Item struct {
	MedicineID string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Writer is the persistence surface the checkout workflow needs: create the
// header, then attach items. The two writes are separate statements; a
// failure in AddItems leaves the header behind as an orphaned pending order
// for operators to reconcile.
type Writer interface {
	// CreateOrder inserts a pending order header; the caller supplies the ID
	// and the computed total.
	CreateOrder(ctx context.Context, o *Order) error

	// AddItems bulk-inserts the items for an existing order.
	AddItems(ctx context.Context, orderID string, items []Item) error
}

// Repository is the admin-facing surface: list orders for reconciliation and
// mutate status under the pending precondition.
type Repository interface {
	Writer

	// Get returns the order with its items, or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)

	// List returns orders newest first, optionally filtered by status.
	// Items are included so operators can spot orphans (headers with missing
	// items) directly from the listing.
	List(ctx context.Context, status Status) ([]Order, error)

	// SetStatus moves a pending order to completed or cancelled. It returns
	// ErrNotPending when the order exists but is no longer pending, and an
	// error wrapping ErrNotFound when it does not exist.
	SetStatus(ctx context.Context, id string, status Status) error
}
