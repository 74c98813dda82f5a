package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer profile exists for a user.
var ErrNotFound = errors.New("customer not found")

// Customer is the profile keyed by the authenticated principal. An order
// cannot be created without a resolved, complete profile.
type Customer struct {
	ID            string
	UserID        string
	Name          string
	Email         string
	CpfCnpj       string
	Phone1        string
	Phone2        string
	Cep           string
	Address       string
	AddressNumber string
	AddressType   string
	Municipio     string
	Estado        string
	Reference     string
}

// IsComplete reports whether every field required for checkout is filled in.
func (c *Customer) IsComplete() bool {
	required := []string{
		c.Name, c.Email, c.CpfCnpj, c.Phone1, c.Cep,
		c.Address, c.AddressNumber, c.AddressType, c.Municipio, c.Estado,
	}
	for _, v := range required {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Repository defines persistence operations for customer profiles.
type Repository interface {
	// FindByUserID returns the profile owned by the given principal, or an
	// error wrapping ErrNotFound.
	FindByUserID(ctx context.Context, userID string) (*Customer, error)

	// Upsert creates or updates the profile keyed by Customer.UserID.
	Upsert(ctx context.Context, c *Customer) error
}
