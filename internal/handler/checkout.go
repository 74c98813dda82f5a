package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/viafarma/storefront/internal/domain/catalog"
	"github.com/viafarma/storefront/internal/domain/checkout"
)

// PlaceOrder runs the checkout workflow for the authenticated customer's cart.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	lines, err := decodeCartLines(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkout.PlaceOrder(r.Context(), checkout.Request{
		UserID: principal.UserID,
		Lines:  lines,
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	o := result.Order
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.lines", len(o.Items)),
	)

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("total", func(e *jx.Encoder) { e.Float64(o.Total.InexactFloat64()) })
			e.Field("confirmationPending", func(e *jx.Encoder) { e.Bool(result.NotificationPending) })
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, item := range o.Items {
						e.Obj(func(e *jx.Encoder) {
							e.Field("medicineId", func(e *jx.Encoder) { e.Str(item.MedicineID) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
							e.Field("unitPrice", func(e *jx.Encoder) { e.Float64(item.UnitPrice.InexactFloat64()) })
						})
					}
				})
			})
		})
	})
}

// writeCheckoutError maps domain checkout errors onto the API surface. The
// split matters: every status here except 500 means "nothing happened, edit
// and retry", while a FailedError with an order ID is surfaced as 500 after
// the repository layer has already logged the orphaned order.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var insErr *checkout.InsufficientStockError
	if errors.As(err, &insErr) {
		writeJSON(w, r, http.StatusConflict, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusConflict) })
				e.Field("message", func(e *jx.Encoder) { e.Str(insErr.Error()) })
				e.Field("medicineId", func(e *jx.Encoder) { e.Str(insErr.MedicineID) })
				e.Field("available", func(e *jx.Encoder) { e.Int(insErr.Available) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(insErr.Requested) })
			})
		})
		return
	}

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrProfileIncomplete):
		writeError(w, r, http.StatusUnprocessableEntity, "complete your customer profile before checking out")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

// decodeCartLines parses the checkout request body:
//
//	{"items": [{"medicineId": "...", "quantity": 1, "priceType": "retail", "promoPercent": 10}, ...]}
//
// priceType and promoPercent are optional.
func decodeCartLines(r *http.Request) ([]checkout.CartLine, error) {
	d := jx.Decode(r.Body, 4096)

	var lines []checkout.CartLine
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			line, err := decodeCartLine(d)
			if err != nil {
				return err
			}
			lines = append(lines, line)
			return nil
		})
	}); err != nil {
		return nil, errors.Wrap(err, "invalid request body")
	}
	return lines, nil
}

func decodeCartLine(d *jx.Decoder) (checkout.CartLine, error) {
	var line checkout.CartLine
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "medicineId":
			v, err := d.Str()
			line.MedicineID = v
			return err
		case "quantity":
			v, err := d.Int()
			line.Quantity = v
			return err
		case "priceType":
			v, err := d.Str()
			if err != nil {
				return err
			}
			switch pt := checkout.PriceType(v); pt {
			case checkout.PriceAuto, checkout.PriceRetail, checkout.PriceWholesale:
				line.PriceType = pt
				return nil
			default:
				return errors.Errorf("unknown price type %q", v)
			}
		case "promoPercent":
			v, err := d.Int()
			if err != nil {
				return err
			}
			if v < 0 || v > 100 {
				return errors.Errorf("promo percent %d out of range", v)
			}
			line.PromoPercent = &v
			return nil
		default:
			return d.Skip()
		}
	})
	return line, err
}
