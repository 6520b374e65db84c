package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.3, round2(0.1+0.2))
	assert.Equal(t, 2.68, round2(2.675000001))
	assert.Equal(t, 0.0, round2(0.004))
}

func TestRecalculate(t *testing.T) {
	inv := &Invoice{
		TaxRate:    0.08,
		Discount:   5,
		AmountPaid: 20,
		Items: []*InvoiceItem{
			{Quantity: 3, UnitPrice: 0.35},
			{Quantity: 1, UnitPrice: 220},
		},
	}
	require.NoError(t, recalculate(inv))
	assert.Equal(t, 1.05, inv.Items[0].Amount)
	assert.Equal(t, 221.05, inv.Subtotal)
	assert.Equal(t, 17.68, inv.TaxAmount)
	assert.Equal(t, 233.73, inv.Total)
	assert.Equal(t, 213.73, inv.Balance)
}

func TestRecalculate_DiscountCap(t *testing.T) {
	inv := &Invoice{TaxRate: 0.1, Discount: 11, Items: []*InvoiceItem{{Quantity: 1, UnitPrice: 10}}}
	require.NoError(t, recalculate(inv))
	assert.Equal(t, 0.0, inv.Total)

	inv.Discount = 11.01
	assert.EqualError(t, recalculate(inv), "discount cannot exceed subtotal plus tax")
}
