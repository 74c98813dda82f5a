package checkout

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viafarma/storefront/internal/domain/catalog"
	"github.com/viafarma/storefront/internal/domain/customer"
	"github.com/viafarma/storefront/internal/domain/order"
)

// --- Mock implementations ---

type mockLedger struct {
	stock        map[string]catalog.StockInfo
	getErr       error
	decremented  map[string]int
	decrementErr map[string]error
}

func (m *mockLedger) GetStock(_ context.Context, ids []string) (map[string]catalog.StockInfo, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]catalog.StockInfo, len(ids))
	for _, id := range ids {
		info, ok := m.stock[id]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrNotFound, "medicine %s", id)
		}
		out[id] = info
	}
	return out, nil
}

func (m *mockLedger) Decrement(_ context.Context, id string, amount int) (int, error) {
	if err := m.decrementErr[id]; err != nil {
		return 0, err
	}
	if m.decremented == nil {
		m.decremented = make(map[string]int)
	}
	m.decremented[id] += amount
	info := m.stock[id]
	info.Stock -= amount
	m.stock[id] = info
	return info.Stock, nil
}

func (m *mockLedger) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	info := m.stock[id]
	info.Stock += delta
	m.stock[id] = info
	return info.Stock, nil
}

type mockCatalog struct {
	meds map[string]catalog.Medicine
}

func (m *mockCatalog) List(_ context.Context, _ catalog.Filter) ([]catalog.Medicine, error) {
	return nil, nil
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Medicine, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &med, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Medicine, error) {
	out := make([]catalog.Medicine, 0, len(ids))
	for _, id := range ids {
		if med, ok := m.meds[id]; ok {
			out = append(out, med)
		}
	}
	return out, nil
}

type mockCustomerRepo struct {
	byUser map[string]*customer.Customer
}

func (m *mockCustomerRepo) FindByUserID(_ context.Context, userID string) (*customer.Customer, error) {
	c, ok := m.byUser[userID]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (m *mockCustomerRepo) Upsert(_ context.Context, c *customer.Customer) error {
	m.byUser[c.UserID] = c
	return nil
}

type mockOrderWriter struct {
	created    *order.Order
	addedItems []order.Item
	createErr  error
	itemsErr   error
}

func (m *mockOrderWriter) CreateOrder(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	return nil
}

func (m *mockOrderWriter) AddItems(_ context.Context, _ string, items []order.Item) error {
	if m.itemsErr != nil {
		return m.itemsErr
	}
	m.addedItems = items
	return nil
}

type mockNotifier struct {
	notified []string
	err      error
}

func (m *mockNotifier) Notify(_ context.Context, orderID string) error {
	m.notified = append(m.notified, orderID)
	return m.err
}

// --- Helpers ---

func completeCustomer(userID string) *customer.Customer {
	return &customer.Customer{
		ID:            "c-" + userID,
		UserID:        userID,
		Name:          "Maria Souza",
		Email:         "maria@example.com",
		CpfCnpj:       "123.456.789-00",
		Phone1:        "(11) 99999-0000",
		Cep:           "01310-100",
		Address:       "Av. Paulista",
		AddressNumber: "1000",
		AddressType:   "Casa",
		Municipio:     "São Paulo",
		Estado:        "SP",
	}
}

func testMedicine(id, name, retail, wholesale string, stock, promo int) catalog.Medicine {
	return catalog.Medicine{
		ID:             id,
		Name:           name,
		Dosage:         "500mg",
		Type:           "Analgesic",
		Price:          d(retail),
		WholesalePrice: d(wholesale),
		Stock:          stock,
		PromoPercent:   promo,
	}
}

type fixture struct {
	ledger    *mockLedger
	catalog   *mockCatalog
	customers *mockCustomerRepo
	orders    *mockOrderWriter
	notifier  *mockNotifier
	svc       *Service
}

func newFixture(meds ...catalog.Medicine) *fixture {
	stock := make(map[string]catalog.StockInfo, len(meds))
	byID := make(map[string]catalog.Medicine, len(meds))
	for _, m := range meds {
		stock[m.ID] = catalog.StockInfo{Name: m.Name, Stock: m.Stock}
		byID[m.ID] = m
	}
	f := &fixture{
		ledger:    &mockLedger{stock: stock},
		catalog:   &mockCatalog{meds: byID},
		customers: &mockCustomerRepo{byUser: map[string]*customer.Customer{"u1": completeCustomer("u1")}},
		orders:    &mockOrderWriter{},
		notifier:  &mockNotifier{},
	}
	f.svc = NewService(f.ledger, f.catalog, f.customers, f.orders, f.notifier)
	return f
}

// --- Tests ---

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), Request{UserID: "u1"})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrder_NoProfile(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 5, 0))

	_, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "unknown",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrProfileIncomplete)
	assert.Nil(t, f.orders.created)
}

func TestPlaceOrder_IncompleteProfile(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 5, 0))
	f.customers.byUser["u2"] = &customer.Customer{UserID: "u2", Name: "Só Nome"}

	_, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u2",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrProfileIncomplete)
}

func TestPlaceOrder_HappyPath(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 5, 0))

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 3, PriceType: PriceRetail}},
	})

	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.True(t, d("30.00").Equal(result.Order.Total), "total %s", result.Order.Total)
	assert.Equal(t, order.StatusPending, result.Order.Status)
	assert.False(t, result.NotificationPending)

	require.Len(t, f.orders.addedItems, 1)
	assert.True(t, d("10.00").Equal(f.orders.addedItems[0].UnitPrice))

	// Stock 5 -> 2.
	assert.Equal(t, 2, f.ledger.stock["m1"].Stock)
	assert.Equal(t, []string{result.Order.ID}, f.notifier.notified)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newFixture(testMedicine("m2", "Amoxicilina", "25.00", "20.00", 2, 0))

	_, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m2", Quantity: 5}},
	})

	var insErr *InsufficientStockError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, "m2", insErr.MedicineID)
	assert.Equal(t, 2, insErr.Available)
	assert.Equal(t, 5, insErr.Requested)

	// No writes of any kind.
	assert.Nil(t, f.orders.created)
	assert.Nil(t, f.orders.addedItems)
	assert.Empty(t, f.ledger.decremented)
	assert.Empty(t, f.notifier.notified)
	assert.Equal(t, 2, f.ledger.stock["m2"].Stock)
}

func TestPlaceOrder_UnknownMedicine(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "ghost", Quantity: 1}},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Nil(t, f.orders.created)
}

func TestPlaceOrder_PromoPricing(t *testing.T) {
	f := newFixture(testMedicine("m3", "Vitamina C", "20.00", "16.00", 50, 10))

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m3", Quantity: 1, PriceType: PriceRetail}},
	})

	require.NoError(t, err)
	assert.True(t, d("18.00").Equal(result.Order.Total), "total %s", result.Order.Total)
	require.Len(t, result.Order.Items, 1)
	assert.True(t, d("18.00").Equal(result.Order.Items[0].UnitPrice))
}

func TestPlaceOrder_WholesaleByQuantity(t *testing.T) {
	f := newFixture(testMedicine("m4", "Soro", "10.00", "7.50", 100, 0))

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m4", Quantity: 10}},
	})

	require.NoError(t, err)
	assert.True(t, d("75.00").Equal(result.Order.Total), "total %s", result.Order.Total)
}

func TestPlaceOrder_MixedCartTotals(t *testing.T) {
	f := newFixture(
		testMedicine("m1", "Dipirona", "10.00", "8.00", 50, 0),
		testMedicine("m3", "Vitamina C", "20.00", "16.00", 50, 10),
	)

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines: []CartLine{
			{MedicineID: "m1", Quantity: 2, PriceType: PriceRetail},
			{MedicineID: "m3", Quantity: 1, PriceType: PriceRetail},
		},
	})

	require.NoError(t, err)
	// 2 x 10.00 + 1 x 18.00 = 38.00
	assert.True(t, d("38.00").Equal(result.Order.Total), "total %s", result.Order.Total)
	assert.Len(t, f.orders.addedItems, 2)
	assert.Equal(t, 48, f.ledger.stock["m1"].Stock)
	assert.Equal(t, 49, f.ledger.stock["m3"].Stock)
}

func TestPlaceOrder_OrderCreateFails(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 5, 0))
	f.orders.createErr = errors.New("connection reset")

	_, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 1}},
	})

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Empty(t, failed.OrderID)

	// Nothing after the failed header write may run.
	assert.Empty(t, f.ledger.decremented)
	assert.Empty(t, f.notifier.notified)
}

func TestPlaceOrder_ItemWriteFailsLeavesOrphan(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 5, 0))
	f.orders.itemsErr = errors.New("write timeout")

	_, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 1}},
	})

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	// The orphaned pending order is named so operators can reconcile it.
	require.NotNil(t, f.orders.created)
	assert.Equal(t, f.orders.created.ID, failed.OrderID)

	assert.Empty(t, f.ledger.decremented)
	assert.Empty(t, f.notifier.notified)
}

func TestPlaceOrder_DecrementFailureDoesNotAbort(t *testing.T) {
	f := newFixture(
		testMedicine("m1", "Dipirona", "10.00", "8.00", 50, 0),
		testMedicine("m2", "Amoxicilina", "25.00", "20.00", 50, 0),
	)
	f.ledger.decrementErr = map[string]error{"m1": catalog.ErrInsufficientStock}

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines: []CartLine{
			{MedicineID: "m1", Quantity: 2, PriceType: PriceRetail},
			{MedicineID: "m2", Quantity: 1, PriceType: PriceRetail},
		},
	})

	// Checkout still succeeds; the failed line is logged, the next line is
	// still decremented.
	require.NoError(t, err)
	assert.NotNil(t, result.Order)
	assert.Equal(t, map[string]int{"m2": 1}, f.ledger.decremented)
	assert.Len(t, f.notifier.notified, 1)
}

func TestPlaceOrder_NotificationFailureIsPendingNotFatal(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 5, 0))
	f.notifier.err = errors.New("webhook unreachable")

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 1}},
	})

	require.NoError(t, err)
	assert.True(t, result.NotificationPending)
	assert.Equal(t, order.StatusPending, result.Order.Status)
}

func TestPlaceOrder_PriceSnapshotIndependentOfCatalog(t *testing.T) {
	f := newFixture(testMedicine("m1", "Dipirona", "10.00", "8.00", 50, 0))

	result, err := f.svc.PlaceOrder(context.Background(), Request{
		UserID: "u1",
		Lines:  []CartLine{{MedicineID: "m1", Quantity: 1, PriceType: PriceRetail}},
	})
	require.NoError(t, err)

	// Catalog price changes after checkout; the written item keeps the
	// snapshot.
	med := f.catalog.meds["m1"]
	med.Price = d("99.00")
	f.catalog.meds["m1"] = med

	assert.True(t, d("10.00").Equal(result.Order.Items[0].UnitPrice))
	assert.True(t, d("10.00").Equal(f.orders.addedItems[0].UnitPrice))
}
