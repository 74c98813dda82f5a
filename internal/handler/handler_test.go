package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viafarma/storefront/internal/domain/auth"
	"github.com/viafarma/storefront/internal/domain/catalog"
	"github.com/viafarma/storefront/internal/domain/checkout"
	"github.com/viafarma/storefront/internal/domain/customer"
	"github.com/viafarma/storefront/internal/domain/order"
)

// --- Mock implementations ---

type mockStore struct {
	meds      map[string]catalog.Medicine
	customers map[string]*customer.Customer
	orders    map[string]*order.Order
	setStatus map[string]order.Status
}

func (m *mockStore) List(_ context.Context, f catalog.Filter) ([]catalog.Medicine, error) {
	out := make([]catalog.Medicine, 0, len(m.meds))
	for _, med := range m.meds {
		if f.Type != "" && med.Type != f.Type {
			continue
		}
		out = append(out, med)
	}
	return out, nil
}

func (m *mockStore) GetByID(_ context.Context, id string) (*catalog.Medicine, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &med, nil
}

func (m *mockStore) GetByIDs(_ context.Context, ids []string) ([]catalog.Medicine, error) {
	out := make([]catalog.Medicine, 0, len(ids))
	for _, id := range ids {
		if med, ok := m.meds[id]; ok {
			out = append(out, med)
		}
	}
	return out, nil
}

func (m *mockStore) GetStock(_ context.Context, ids []string) (map[string]catalog.StockInfo, error) {
	out := make(map[string]catalog.StockInfo, len(ids))
	for _, id := range ids {
		med, ok := m.meds[id]
		if !ok {
			return nil, catalog.ErrNotFound
		}
		out[id] = catalog.StockInfo{Name: med.Name, Stock: med.Stock}
	}
	return out, nil
}

func (m *mockStore) Decrement(_ context.Context, id string, amount int) (int, error) {
	med := m.meds[id]
	if med.Stock < amount {
		return 0, catalog.ErrInsufficientStock
	}
	med.Stock -= amount
	m.meds[id] = med
	return med.Stock, nil
}

func (m *mockStore) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	med, ok := m.meds[id]
	if !ok {
		return 0, catalog.ErrNotFound
	}
	if med.Stock+delta < 0 {
		return 0, catalog.ErrInsufficientStock
	}
	med.Stock += delta
	m.meds[id] = med
	return med.Stock, nil
}

func (m *mockStore) FindByUserID(_ context.Context, userID string) (*customer.Customer, error) {
	c, ok := m.customers[userID]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) Upsert(_ context.Context, c *customer.Customer) error {
	m.customers[c.UserID] = c
	return nil
}

func (m *mockStore) CreateOrder(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockStore) AddItems(_ context.Context, _ string, _ []order.Item) error {
	return nil
}

func (m *mockStore) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockStore) SetStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return order.ErrNotPending
	}
	o.Status = status
	if m.setStatus == nil {
		m.setStatus = make(map[string]order.Status)
	}
	m.setStatus[id] = status
	return nil
}

// orderRepo adapts mockStore to order.Repository (List has a name clash with
// the catalog List on the same struct).
type orderRepo struct{ *mockStore }

func (r orderRepo) List(ctx context.Context, status order.Status) ([]order.Order, error) {
	out := make([]order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

type mockKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return info, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string) error { return nil }

// --- Helpers ---

const testPepper = "test-pepper"

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func completeCustomer(userID string) *customer.Customer {
	return &customer.Customer{
		ID: "c1", UserID: userID,
		Name: "Maria Souza", Email: "maria@example.com", CpfCnpj: "123.456.789-00",
		Phone1: "(11) 99999-0000", Cep: "01310-100", Address: "Av. Paulista",
		AddressNumber: "1000", AddressType: "Casa", Municipio: "São Paulo", Estado: "SP",
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *mockStore) {
	t.Helper()

	store := &mockStore{
		meds: map[string]catalog.Medicine{
			"m1": {
				ID: "m1", Name: "Dipirona", Type: "Analgesic",
				Price:          decimal.RequireFromString("10.00"),
				WholesalePrice: decimal.RequireFromString("8.00"),
				Stock:          5,
			},
		},
		customers: map[string]*customer.Customer{"u1": completeCustomer("u1")},
		orders:    map[string]*order.Order{},
	}
	keys := &mockKeys{byHash: map[string]*auth.APIKeyInfo{
		hashKey("customer-key"): {ID: "k1", KeyHash: hashKey("customer-key"), UserID: "u1", Scopes: []string{"orders"}},
		hashKey("admin-key"):    {ID: "k2", KeyHash: hashKey("admin-key"), UserID: "admin", Scopes: []string{"orders", auth.ScopeAdmin}},
	}}

	repo := orderRepo{store}
	svc := checkout.NewService(store, store, store, repo, noopNotifier{})
	security := NewSecurity(keys, []byte(testPepper))
	h := NewHandler(Config{}, store, store, store, repo, svc, security)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, apiKey, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// --- Tests ---

func TestListMedicines_Public(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/medicines")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var meds []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meds))
	require.Len(t, meds, 1)
	assert.Equal(t, "Dipirona", meds[0]["name"])
	assert.EqualValues(t, 5, meds[0]["stock"])
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/checkout", "", `{"items":[]}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileHandlers_NoPrincipalIsUnauthorized(t *testing.T) {
	store := &mockStore{customers: map[string]*customer.Customer{}}
	h := NewHandler(Config{}, store, store, store, orderRepo{store}, nil, nil)

	for _, tc := range []struct {
		method string
		fn     http.HandlerFunc
	}{
		{http.MethodGet, h.GetProfile},
		{http.MethodPut, h.PutProfile},
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, "/api/profile", nil)
		tc.fn(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method)
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	srv, store := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/checkout", "customer-key",
		`{"items":[{"medicineId":"m1","quantity":3,"priceType":"retail"}]}`)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.InDelta(t, 30.00, body["total"], 0.001)
	assert.Equal(t, false, body["confirmationPending"])
	assert.Equal(t, 2, store.meds["m1"].Stock)
}

func TestPlaceOrder_InsufficientStockIsConflict(t *testing.T) {
	srv, store := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/checkout", "customer-key",
		`{"items":[{"medicineId":"m1","quantity":50}]}`)

	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "m1", body["medicineId"])
	assert.EqualValues(t, 5, body["available"])
	assert.EqualValues(t, 50, body["requested"])
	assert.Equal(t, 5, store.meds["m1"].Stock)
	assert.Empty(t, store.orders)
}

func TestPlaceOrder_EmptyCartIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/checkout", "customer-key", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrder_NoProfileIsUnprocessable(t *testing.T) {
	srv, store := newTestServer(t)
	delete(store.customers, "u1")

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/checkout", "customer-key",
		`{"items":[{"medicineId":"m1","quantity":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAdminEndpoints_RequireAdminScope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/orders", "customer-key", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/orders", "admin-key", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetOrderStatus_PendingPrecondition(t *testing.T) {
	srv, store := newTestServer(t)
	store.orders["o1"] = &order.Order{ID: "o1", UserID: "u1", Status: order.StatusPending}

	resp, body := do(t, http.MethodPost, srv.URL+"/api/orders/o1/status", "admin-key",
		`{"status":"completed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])

	// Terminal orders reject further mutation.
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/orders/o1/status", "admin-key",
		`{"status":"cancelled"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSetOrderStatus_RejectsPendingTarget(t *testing.T) {
	srv, store := newTestServer(t)
	store.orders["o1"] = &order.Order{ID: "o1", Status: order.StatusPending}

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/orders/o1/status", "admin-key",
		`{"status":"pending"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdjustStock(t *testing.T) {
	srv, store := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/medicines/m1/stock", "admin-key",
		`{"delta":100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 105, body["stock"])
	assert.Equal(t, 105, store.meds["m1"].Stock)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/medicines/m1/stock", "admin-key",
		`{"delta":-1000}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
