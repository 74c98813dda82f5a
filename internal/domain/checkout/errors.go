package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for pre-write rejections. Both are fully recoverable: no
// order, item, or stock write has happened when they are returned.
var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrProfileIncomplete means the authenticated user has no customer
	// profile, or the profile is missing required fields. The storefront
	// redirects to profile completion.
	ErrProfileIncomplete = errors.New("customer profile is incomplete")
)

// InsufficientStockError rejects a checkout whose cart asks for more units
// than are live in the ledger. Returned before any write; the customer edits
// the cart and retries.
type InsufficientStockError struct {
	MedicineID string
	Name       string
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): %d available, %d requested",
		e.Name, e.MedicineID, e.Available, e.Requested)
}

// FailedError is a post-validation fatal error. Once the order header is
// durable, OrderID names the orphaned pending order that operators must
// reconcile; before that it is empty and nothing was written.
type FailedError struct {
	// OrderID is set when an order header exists despite the failure.
	OrderID string
	Err     error
}

func (e *FailedError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("checkout failed after order %s was created: %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("checkout failed: %v", e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }
