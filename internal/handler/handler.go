// Package handler exposes the storefront over HTTP: the public catalog, the
// authenticated checkout and profile endpoints, and the admin back-office
// surface. Handlers decode and encode JSON with go-faster/jx and delegate all
// business logic to the domain packages.
package handler

import (
	"net/http"

	"github.com/viafarma/storefront/internal/domain/auth"
	"github.com/viafarma/storefront/internal/domain/catalog"
	"github.com/viafarma/storefront/internal/domain/checkout"
	"github.com/viafarma/storefront/internal/domain/customer"
	"github.com/viafarma/storefront/internal/domain/order"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in medicine
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string
}

// Handler routes storefront API requests to the domain services.
type Handler struct {
	medicines catalog.Repository
	ledger    catalog.Ledger
	customers customer.Repository
	orders    order.Repository
	checkout  *checkout.Service
	security  *Security

	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	medicines catalog.Repository,
	ledger catalog.Ledger,
	customers customer.Repository,
	orders order.Repository,
	checkoutSvc *checkout.Service,
	security *Security,
) *Handler {
	return &Handler{
		medicines:    medicines,
		ledger:       ledger,
		customers:    customers,
		orders:       orders,
		checkout:     checkoutSvc,
		security:     security,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API mux. The catalog is public; everything else requires
// an API key, and the back-office endpoints additionally require the admin
// scope.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/medicines", h.ListMedicines)

	mux.Handle("POST /api/checkout", h.security.Authenticate(http.HandlerFunc(h.PlaceOrder)))
	mux.Handle("GET /api/profile", h.security.Authenticate(http.HandlerFunc(h.GetProfile)))
	mux.Handle("PUT /api/profile", h.security.Authenticate(http.HandlerFunc(h.PutProfile)))

	admin := func(fn http.HandlerFunc) http.Handler {
		return h.security.Authenticate(h.security.RequireScope(auth.ScopeAdmin, fn))
	}
	mux.Handle("GET /api/orders", admin(h.ListOrders))
	mux.Handle("GET /api/orders/{id}", admin(h.GetOrder))
	mux.Handle("POST /api/orders/{id}/status", admin(h.SetOrderStatus))
	mux.Handle("POST /api/medicines/{id}/stock", admin(h.AdjustStock))

	return mux
}
