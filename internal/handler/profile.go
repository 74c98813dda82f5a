package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/viafarma/storefront/internal/domain/customer"
)

// GetProfile returns the authenticated customer's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	c, err := h.customers.FindByUserID(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "no customer profile yet")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeCustomer(e, c)
	})
}

// PutProfile creates or replaces the authenticated customer's profile.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	c, err := decodeCustomer(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c.UserID = principal.UserID

	// Keep the existing row ID on update; mint one on first save.
	if existing, err := h.customers.FindByUserID(r.Context(), principal.UserID); err == nil {
		c.ID = existing.ID
	} else if errors.Is(err, customer.ErrNotFound) {
		c.ID = uuid.New().String()
	} else {
		writeInternalError(w, r, err)
		return
	}

	if err := h.customers.Upsert(r.Context(), c); err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeCustomer(e, c)
	})
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
		e.Field("cpfCnpj", func(e *jx.Encoder) { e.Str(c.CpfCnpj) })
		e.Field("phone1", func(e *jx.Encoder) { e.Str(c.Phone1) })
		e.Field("phone2", func(e *jx.Encoder) { e.Str(c.Phone2) })
		e.Field("cep", func(e *jx.Encoder) { e.Str(c.Cep) })
		e.Field("address", func(e *jx.Encoder) { e.Str(c.Address) })
		e.Field("addressNumber", func(e *jx.Encoder) { e.Str(c.AddressNumber) })
		e.Field("addressType", func(e *jx.Encoder) { e.Str(c.AddressType) })
		e.Field("municipio", func(e *jx.Encoder) { e.Str(c.Municipio) })
		e.Field("estado", func(e *jx.Encoder) { e.Str(c.Estado) })
		e.Field("reference", func(e *jx.Encoder) { e.Str(c.Reference) })
		e.Field("complete", func(e *jx.Encoder) { e.Bool(c.IsComplete()) })
	})
}

func decodeCustomer(r *http.Request) (*customer.Customer, error) {
	d := jx.Decode(r.Body, 4096)

	var c customer.Customer
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		dst, ok := customerField(&c, key)
		if !ok {
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "invalid request body")
	}
	return &c, nil
}

func customerField(c *customer.Customer, key string) (*string, bool) {
	switch key {
	case "name":
		return &c.Name, true
	case "email":
		return &c.Email, true
	case "cpfCnpj":
		return &c.CpfCnpj, true
	case "phone1":
		return &c.Phone1, true
	case "phone2":
		return &c.Phone2, true
	case "cep":
		return &c.Cep, true
	case "address":
		return &c.Address, true
	case "addressNumber":
		return &c.AddressNumber, true
	case "addressType":
		return &c.AddressType, true
	case "municipio":
		return &c.Municipio, true
	case "estado":
		return &c.Estado, true
	case "reference":
		return &c.Reference, true
	}
	return nil, false
}
