package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viafarma/storefront/internal/domain/catalog"
	"github.com/viafarma/storefront/internal/domain/customer"
	"github.com/viafarma/storefront/internal/domain/order"
)

// Notifier dispatches the out-of-band "new order" notification to operators.
// It is invoked exactly once per checkout, after the order and its items are
// durable; the outcome never blocks or reverses the checkout.
type Notifier interface {
	Notify(ctx context.Context, orderID string) error
}

// Request holds the input for a checkout: the authenticated principal and the
// immutable cart snapshot submitted by the client.
type Request struct {
	UserID string
	Lines  []CartLine
}

// Result is the outcome of a successful checkout.
type Result struct {
	Order *order.Order

	// NotificationPending is true when the operator notification could not be
	// dispatched. The order is placed either way; the storefront shows
	// "confirmation pending" instead of treating this as a failure.
	NotificationPending bool
}

// Service sequences the checkout workflow: validation, order creation, item
// writes, per-line stock decrement, operator notification.
//
// Only validation produces a hard rejection with no side effects. After the
// order header is durable the workflow favors "order exists but may need
// manual reconciliation" over losing the sale: the item write failing leaves
// an orphaned pending order, a decrement failing on one line neither aborts
// the remaining lines nor reverts the order, and a notification failure is
// reported to the caller as a pending confirmation. There is no transaction
// spanning the steps; stock is guarded per line by the ledger's conditional
// decrement.
type Service struct {
	ledger    catalog.Ledger
	catalog   catalog.Repository
	customers customer.Repository
	orders    order.Writer
	notifier  Notifier
}

// NewService creates a checkout Service with the required collaborators.
func NewService(
	ledger catalog.Ledger,
	cat catalog.Repository,
	customers customer.Repository,
	orders order.Writer,
	notifier Notifier,
) *Service {
	return &Service{
		ledger:    ledger,
		catalog:   cat,
		customers: customers,
		orders:    orders,
		notifier:  notifier,
	}
}

// PlaceOrder runs the checkout workflow for the given cart.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	lg := zctx.From(ctx)

	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, errors.Errorf("quantity must be greater than 0 for medicine %s", line.MedicineID)
		}
	}

	// Checkout requires a resolved, complete customer profile.
	cust, err := s.customers.FindByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, ErrProfileIncomplete
		}
		return nil, errors.Wrap(err, "resolve customer")
	}
	if !cust.IsComplete() {
		return nil, ErrProfileIncomplete
	}

	// Validate every line against live stock before any write.
	ids := distinctIDs(req.Lines)

	stock, err := s.ledger.GetStock(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get stock")
	}

	meds, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get medicines")
	}
	byID := make(map[string]catalog.Medicine, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}

	for _, line := range req.Lines {
		info, ok := stock[line.MedicineID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrNotFound, "medicine %s", line.MedicineID)
		}
		if line.Quantity > info.Stock {
			return nil, &InsufficientStockError{
				MedicineID: line.MedicineID,
				Name:       info.Name,
				Available:  info.Stock,
				Requested:  line.Quantity,
			}
		}
	}

	// Resolve unit prices and the order total. Prices are frozen here;
	// later catalog changes do not touch existing order items.
	items := make([]order.Item, len(req.Lines))
	total := decimal.Zero
	for i, line := range req.Lines {
		med, ok := byID[line.MedicineID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrNotFound, "medicine %s", line.MedicineID)
		}
		unit := ResolvePrice(line, med.Price, med.WholesalePrice, med.PromoPercent)
		items[i] = order.Item{
			MedicineID: line.MedicineID,
			Quantity:   line.Quantity,
			UnitPrice:  unit,
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	total = total.Round(2)

	// Persist the order header. A failure here is fatal but clean: nothing
	// was written yet.
	o := &order.Order{
		ID:     uuid.New().String(),
		UserID: req.UserID,
		Total:  total,
		Status: order.StatusPending,
		Items:  items,
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		return nil, &FailedError{Err: errors.Wrap(err, "create order")}
	}

	// Persist items. A failure here leaves the header as an orphaned pending
	// order; operators reconcile it from the admin order list.
	if err := s.orders.AddItems(ctx, o.ID, items); err != nil {
		return nil, &FailedError{OrderID: o.ID, Err: errors.Wrap(err, "add order items")}
	}

	// Decrement stock per line. Each decrement stands alone: one failing is
	// logged and the rest proceed, and the order is never reverted.
	for _, item := range items {
		if _, err := s.ledger.Decrement(ctx, item.MedicineID, item.Quantity); err != nil {
			lg.Error("stock adjustment failed",
				zap.String("order_id", o.ID),
				zap.String("medicine_id", item.MedicineID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}

	// Notify operators. Best effort: a failure downgrades the user-visible
	// outcome to "confirmation pending", never to a checkout failure.
	result := &Result{Order: o}
	if err := s.notifier.Notify(ctx, o.ID); err != nil {
		lg.Warn("order notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		result.NotificationPending = true
	}

	return result, nil
}

// distinctIDs returns the unique medicine IDs of the cart in first-seen order.
func distinctIDs(lines []CartLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.MedicineID]; ok {
			continue
		}
		seen[line.MedicineID] = struct{}{}
		ids = append(ids, line.MedicineID)
	}
	return ids
}
