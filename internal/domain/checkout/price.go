package checkout

import "github.com/shopspring/decimal"

// PriceType selects which catalog price a cart line is charged at.
type PriceType string

const (
	// PriceAuto picks wholesale when the quantity reaches the wholesale
	// minimum, retail otherwise.
	PriceAuto PriceType = ""
	// PriceRetail always charges the retail price.
	PriceRetail PriceType = "retail"
	// PriceWholesale always charges the wholesale price. Wholesale lines are
	// expected to carry at least WholesaleMinQty units; the storefront
	// normalizes the quantity upward at add-to-cart time.
	PriceWholesale PriceType = "wholesale"
)

// WholesaleMinQty is the quantity at which auto-priced lines switch to the
// wholesale price.
const WholesaleMinQty = 10

// CartLine is a single entry of the transient client-side cart. It is never
// persisted; checkout turns it into an order item with a frozen unit price.
type CartLine struct {
	MedicineID string
	Quantity   int
	PriceType  PriceType

	// PromoPercent, when non-nil, is the promotional discount captured at
	// add-to-cart time and overrides the live catalog promo.
	PromoPercent *int
}

var hundred = decimal.NewFromInt(100)

// ResolvePrice returns the final per-unit price for a cart line: the base
// price selected by the line's price type, discounted by the promo percent,
// rounded to 2 decimal places. This value is frozen into the order item.
//
// promoPercent is the catalog's live promo; a frozen promo on the line wins.
func ResolvePrice(line CartLine, retail, wholesale decimal.Decimal, promoPercent int) decimal.Decimal {
	base := retail
	switch line.PriceType {
	case PriceWholesale:
		base = wholesale
	case PriceRetail:
		base = retail
	case PriceAuto:
		if line.Quantity >= WholesaleMinQty {
			base = wholesale
		}
	}

	if line.PromoPercent != nil {
		promoPercent = *line.PromoPercent
	}
	if promoPercent > 0 {
		multiplier := hundred.Sub(decimal.NewFromInt(int64(promoPercent))).Div(hundred)
		base = base.Mul(multiplier)
	}

	return base.Round(2)
}
