// Package pricing computes order amounts from authoritative catalog prices.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest amount an order column can store.
var MaxAmount = decimal.RequireFromString("9999999999.99")

type Policy struct {
	ShippingFlatFee decimal.Decimal
	// Orders whose item total reaches this amount ship free. Zero disables it.
	ShippingFreeThreshold decimal.Decimal
	TaxRate               decimal.Decimal
	// Upper bound on any client-claimed discount.
	DiscountCap decimal.Decimal
}

type Line struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Breakdown struct {
	ItemTotal decimal.Decimal
	Shipping  decimal.Decimal
	Tax       decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// Quote prices lines under p. The client discount is clamped to
// [0, min(p.DiscountCap, item total)] and the total is floored at zero.
func Quote(lines []Line, p Policy, clientDiscount decimal.Decimal) Breakdown {
	var b Breakdown
	for _, l := range lines {
		b.ItemTotal = b.ItemTotal.Add(l.Subtotal())
	}

	b.Shipping = p.ShippingFlatFee
	if p.ShippingFreeThreshold.IsPositive() && b.ItemTotal.GreaterThanOrEqual(p.ShippingFreeThreshold) {
		b.Shipping = decimal.Zero
	}

	b.Tax = b.ItemTotal.Mul(p.TaxRate).Round(2)

	b.Discount = decimal.Max(decimal.Zero, decimal.Min(clientDiscount, p.DiscountCap, b.ItemTotal))

	b.Total = decimal.Max(decimal.Zero, b.ItemTotal.Add(b.Shipping).Add(b.Tax).Sub(b.Discount))
	return b
}

// MinorUnits converts amount to the gateway's integer minor unit (paise,
// cents), rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
