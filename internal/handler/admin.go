package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/viafarma/storefront/internal/domain/catalog"
	"github.com/viafarma/storefront/internal/domain/order"
)

// ListOrders serves the reconciliation view: orders newest first with their
// items, optionally filtered by ?status=. Pending orders with no items are
// the orphans operators must settle by hand.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown status filter")
		return
	}

	orders, err := h.orders.List(r.Context(), status)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

// GetOrder serves a single order with its items.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// SetOrderStatus moves a pending order to completed or cancelled. The body is
// {"status": "completed"} or {"status": "cancelled"}.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := decodeStatus(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orders.SetStatus(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrNotPending):
			writeError(w, r, http.StatusConflict, "order is not pending")
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(id) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		})
	})
}

// AdjustStock applies a signed stock delta to a medicine. The body is
// {"delta": 100} (restock) or {"delta": -5} (correction).
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	delta, err := decodeDelta(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stock, err := h.ledger.AdjustStock(r.Context(), id, delta)
	if err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			writeError(w, r, http.StatusConflict, "adjustment would take stock below zero")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("medicineId", func(e *jx.Encoder) { e.Str(id) })
			e.Field("stock", func(e *jx.Encoder) { e.Int(stock) })
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("total", func(e *jx.Encoder) { e.Float64(o.Total.InexactFloat64()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format("2006-01-02T15:04:05Z07:00")) })
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
}

func decodeStatus(r *http.Request) (order.Status, error) {
	d := jx.Decode(r.Body, 512)

	var status order.Status
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = order.Status(v)
		return err
	}); err != nil {
		return "", errors.Wrap(err, "invalid request body")
	}

	if status != order.StatusCompleted && status != order.StatusCancelled {
		return "", errors.Errorf("status must be %q or %q", order.StatusCompleted, order.StatusCancelled)
	}
	return status, nil
}

func decodeDelta(r *http.Request) (int, error) {
	d := jx.Decode(r.Body, 512)

	var (
		delta int
		found bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "delta" {
			return d.Skip()
		}
		v, err := d.Int()
		delta = v
		found = true
		return err
	}); err != nil {
		return 0, errors.Wrap(err, "invalid request body")
	}
	if !found || delta == 0 {
		return 0, errors.New("delta must be a non-zero integer")
	}
	return delta, nil
}
