package handlers

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"stockpos/internal/activity"
	"stockpos/internal/models"
)

func TestSummarizeStatuses(t *testing.T) {
	summary := summarizeStatuses([]statusBucket{
		{Status: models.SaleStatusCompleted, Count: 4, Revenue: 100.006, Profit: 30},
		{Status: models.SaleStatusPending, Count: 1, Revenue: 50, Profit: 10},
		{Status: models.SaleStatusRefunded, Count: 2, Revenue: 20, Profit: 5},
	})

	assert.Equal(t, int64(7), summary["total_sales"])
	assert.Equal(t, 100.01, summary["total_revenue"])
	assert.Equal(t, 30.0, summary["total_profit"])
	assert.Equal(t, 25.0, summary["average_sale_value"])

	counts := summary["by_status"].(gin.H)
	assert.Equal(t, int64(0), counts[models.SaleStatusCancelled])
	assert.Equal(t, int64(2), counts[models.SaleStatusRefunded])

	empty := summarizeStatuses(nil)
	assert.Equal(t, 0.0, empty["average_sale_value"])
}

func TestBuildSalesChart(t *testing.T) {
	today := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC) // Wednesday
	points := buildSalesChart(map[string]float64{
		"2024-06-12": 120.456,
		"2024-06-10": 40,
	}, today, 7)

	require.Len(t, points, 7)
	assert.Equal(t, "Thu", points[0].Label)
	assert.Equal(t, "2024-06-06", points[0].Date)
	assert.Equal(t, "Mon", points[4].Label)
	assert.Equal(t, 40.0, points[4].Total)
	assert.Equal(t, "Yesterday", points[5].Label)
	assert.Equal(t, 0.0, points[5].Total)
	assert.Equal(t, "Today", points[6].Label)
	assert.Equal(t, 120.46, points[6].Total)
}

func TestSummarizeValuation(t *testing.T) {
	rows := []categoryValuation{
		{CategoryName: "Drinks", Products: 3, Units: 40, CostValue: 100.111, RetailValue: 150.444},
		{Products: 1, Units: 5, CostValue: 10, RetailValue: 12},
	}
	totals := summarizeValuation(rows)

	assert.Equal(t, "Uncategorized", rows[1].CategoryName)
	assert.Equal(t, 100.11, rows[0].CostValue)
	assert.Equal(t, int64(4), totals["total_products"])
	assert.Equal(t, int64(45), totals["total_units"])
	assert.Equal(t, 110.11, totals["total_cost_value"])
	assert.Equal(t, 162.44, totals["total_retail_value"])
	assert.Equal(t, 52.33, totals["potential_gross_profit"])
}

func TestSaleCSVRow(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Kampala")
	require.NoError(t, err)

	sale := models.Sale{
		SaleNumber: "SALE-000042",
		Items: []models.SaleItem{
			{ProductName: "Bread", Quantity: 2, UnitPrice: 1.5},
			{ProductName: "Milk", Quantity: 1, UnitPrice: 0.8},
		},
		Subtotal:        3.8,
		DiscountAmount:  0.3,
		TaxAmount:       0,
		TotalAmount:     3.5,
		TotalProfit:     1.1,
		Status:          models.SaleStatusCompleted,
		PaymentMethod:   models.PaymentCash,
		PaymentReceived: 5,
		ChangeGiven:     1.5,
		CashierName:     "Jane Doe",
		CreatedAt:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
	}

	row := saleCSVRow(sale, loc)
	require.Len(t, row, len(saleCSVHeader))
	assert.Equal(t, walkInCustomer, row[1])
	assert.Equal(t, "Bread x2 @ 1.50; Milk x1 @ 0.80", row[2])
	assert.Equal(t, "3.50", row[6])
	assert.Equal(t, "2024-06-01 12:30:00", row[12])
	assert.Equal(t, "Jane Doe", row[13])
}

func TestSummarizeActivity(t *testing.T) {
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}
	users := []models.User{
		{ID: primitive.NewObjectID(), LastActivity: at(time.Minute)},
		{ID: primitive.NewObjectID(), LastLogin: at(3 * time.Hour)},
		{ID: primitive.NewObjectID(), LastLogin: at(72 * time.Hour), LastActivity: at(50 * time.Hour)},
		{ID: primitive.NewObjectID()},
	}

	summary := summarizeActivity(users, now, time.UTC)
	assert.Equal(t, map[string]int{
		activity.StatusOnline:  1,
		activity.StatusRecent:  1,
		activity.StatusAway:    1,
		activity.StatusOffline: 1,
		"total":                4,
	}, summary)
}

func TestRestockHelpers(t *testing.T) {
	id := primitive.NewObjectID()
	lines, err := parseRestockLines([]RestockItemRequest{{ProductID: id.Hex(), Quantity: 3, CostPrice: 1.25}})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, id, lines[0].ProductID)

	_, err = parseRestockLines([]RestockItemRequest{{ProductID: "bad", Quantity: 1}})
	assert.Error(t, err)

	status, paid := expenseStatus(models.PaymentMobileMoney)
	assert.Equal(t, models.ExpenseStatusPaid, status)
	assert.True(t, paid)

	status, paid = expenseStatus(models.PaymentBankTransfer)
	assert.Equal(t, models.ExpenseStatusNotPaid, status)
	assert.False(t, paid)
}

func TestNavFor(t *testing.T) {
	labels := func(role string) []string {
		var out []string
		for _, item := range navFor(role) {
			out = append(out, item.Path)
		}
		return out
	}

	assert.Contains(t, labels(models.RoleAdmin), "/users")
	assert.NotContains(t, labels(models.RoleCashier), "/users")
	assert.NotContains(t, labels(models.RoleCashier), "/suppliers")
	assert.Contains(t, labels(models.RoleCashier), "/pos")
	assert.Equal(t, []string{"/dashboard", "/products", "/categories", "/sales"}, labels(""))
}
