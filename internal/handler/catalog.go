package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/viafarma/storefront/internal/domain/catalog"
)

// ListMedicines serves the catalog, optionally filtered by ?search= and
// ?type=.
func (h *Handler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meds, err := h.medicines.List(r.Context(), catalog.Filter{
		Search: q.Get("search"),
		Type:   q.Get("type"),
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range meds {
				h.encodeMedicine(e, &meds[i])
			}
		})
	})
}

func (h *Handler) encodeMedicine(e *jx.Encoder, m *catalog.Medicine) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(m.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(m.Name) })
		e.Field("dosage", func(e *jx.Encoder) { e.Str(m.Dosage) })
		e.Field("type", func(e *jx.Encoder) { e.Str(m.Type) })
		e.Field("description", func(e *jx.Encoder) { e.Str(m.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Float64(m.Price.InexactFloat64()) })
		e.Field("wholesalePrice", func(e *jx.Encoder) { e.Float64(m.WholesalePrice.InexactFloat64()) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(m.Stock) })
		e.Field("promoPercent", func(e *jx.Encoder) { e.Int(m.PromoPercent) })
		e.Field("requiresPrescription", func(e *jx.Encoder) { e.Bool(m.RequiresPrescription) })
		if m.ExpiresAt != nil {
			e.Field("expiresAt", func(e *jx.Encoder) { e.Str(m.ExpiresAt.Format("2006-01-02")) })
		}
		e.Field("imageUrl", func(e *jx.Encoder) { e.Str(h.imageURL(m.ImageURL)) })
	})
}

// imageURL resolves a stored image path against the configured base URL.
// Absolute URLs pass through untouched.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
