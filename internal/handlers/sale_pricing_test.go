package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"stockpos/internal/models"
)

func TestMergeLinesFoldsDuplicates(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()

	lines, err := mergeLines([]SaleItemRequest{
		{ProductID: a.Hex(), Quantity: 2, DiscountAmount: 1},
		{ProductID: b.Hex(), Quantity: 1},
		{ProductID: a.Hex(), Quantity: 3, DiscountAmount: 0.5},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, saleLine{ProductID: a, Quantity: 5, Discount: 1.5}, lines[0])
	assert.Equal(t, saleLine{ProductID: b, Quantity: 1}, lines[1])
}

func TestMergeLinesRejectsBadInput(t *testing.T) {
	_, err := mergeLines(nil)
	assert.Error(t, err)

	_, err = mergeLines([]SaleItemRequest{{ProductID: "nope", Quantity: 1}})
	assert.Error(t, err)

	_, err = mergeLines([]SaleItemRequest{{ProductID: primitive.NewObjectID().Hex(), Quantity: 0}})
	assert.Error(t, err)
}

func TestPriceLine(t *testing.T) {
	p := models.Product{ID: primitive.NewObjectID(), Name: "Sugar", SKU: "SUG-1", Price: 5000, CostPrice: 4200}

	item, err := priceLine(p, saleLine{ProductID: p.ID, Quantity: 3, Discount: 500})
	require.NoError(t, err)
	assert.Equal(t, 14500.0, item.TotalPrice)
	assert.Equal(t, 1900.0, item.Profit)
	assert.Equal(t, "SUG-1", item.SKU)

	item, err = priceLine(p, saleLine{ProductID: p.ID, Quantity: 1, Discount: 1000})
	require.NoError(t, err)
	assert.Equal(t, 0.0, item.Profit, "profit is floored at zero")

	_, err = priceLine(p, saleLine{ProductID: p.ID, Quantity: 1, Discount: 6000})
	assert.Error(t, err)
}

func TestComputeTotals(t *testing.T) {
	items := []models.SaleItem{
		{TotalPrice: 100, Profit: 30},
		{TotalPrice: 50.5, Profit: 10},
	}

	totals, err := computeTotals(items, 10.5, 0.18)
	require.NoError(t, err)
	assert.Equal(t, 150.5, totals.Subtotal)
	assert.Equal(t, 25.2, totals.TaxAmount)
	assert.Equal(t, 165.2, totals.Total)
	assert.Equal(t, 29.5, totals.TotalProfit)

	totals, err = computeTotals(items, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, totals.TotalProfit)

	_, err = computeTotals(items, 200, 0)
	assert.Error(t, err)
	_, err = computeTotals(items, 0, 1.5)
	assert.Error(t, err)
}

func TestSettlePayment(t *testing.T) {
	status, change, err := settlePayment(models.PaymentCash, 20000, 18500)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCompleted, status)
	assert.Equal(t, 1500.0, change)

	status, change, err = settlePayment(models.PaymentNotPaid, 0, 18500)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusPending, status)
	assert.Zero(t, change)

	_, _, err = settlePayment(models.PaymentCard, 100, 18500)
	var payErr paymentError
	assert.ErrorAs(t, err, &payErr)

	_, _, err = settlePayment("cheque", 100, 10)
	assert.ErrorAs(t, err, &payErr)
}

func TestCustomerDeltaAndStockRestore(t *testing.T) {
	orders, amount := customerDelta(models.SaleStatusPending, models.SaleStatusCompleted, 100)
	assert.Equal(t, 1, orders)
	assert.Equal(t, 100.0, amount)

	orders, amount = customerDelta(models.SaleStatusCompleted, models.SaleStatusRefunded, 100)
	assert.Equal(t, -1, orders)
	assert.Equal(t, -100.0, amount)

	orders, _ = customerDelta(models.SaleStatusPending, models.SaleStatusCancelled, 100)
	assert.Zero(t, orders)

	assert.True(t, restoresStock(models.SaleStatusCompleted, models.SaleStatusRefunded))
	assert.True(t, restoresStock(models.SaleStatusPending, models.SaleStatusCancelled))
	assert.False(t, restoresStock(models.SaleStatusPending, models.SaleStatusCompleted))
}
