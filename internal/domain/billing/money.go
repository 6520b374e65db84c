package billing

import (
	"math"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// recalculate derives every money field of inv from its items, tax rate,
// discount and amount paid.
func recalculate(inv *Invoice) error {
	subtotal := 0.0
	for _, it := range inv.Items {
		it.Amount = round2(float64(it.Quantity) * it.UnitPrice)
		subtotal += it.Amount
	}
	inv.Subtotal = round2(subtotal)
	inv.TaxAmount = round2(inv.Subtotal * inv.TaxRate)
	inv.Discount = round2(inv.Discount)
	if inv.Discount > round2(inv.Subtotal+inv.TaxAmount) {
		return apperr.Invalid("discount cannot exceed subtotal plus tax")
	}
	inv.Total = round2(inv.Subtotal + inv.TaxAmount - inv.Discount)
	inv.AmountPaid = round2(inv.AmountPaid)
	inv.Balance = round2(inv.Total - inv.AmountPaid)
	return nil
}
