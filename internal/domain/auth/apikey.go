package auth

import "context"

// ScopeAdmin gates the back-office surface: order status mutation, stock
// adjustment, reconciliation listings.
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
// UserID is the principal the key acts as; checkout resolves the customer
// profile through it.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
