package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"stockpos/internal/models"
)

func TestStockAdjustment(t *testing.T) {
	id := primitive.NewObjectID()

	filter, update, err := stockAdjustment(id, stockSubtract, 4)
	require.NoError(t, err)
	assert.Equal(t, id, filter["_id"])
	assert.Equal(t, bson.M{"$gte": 4}, filter["stock_quantity"])
	assert.Equal(t, bson.M{"stock_quantity": -4}, update["$inc"])

	filter, update, err = stockAdjustment(id, stockAdd, 6)
	require.NoError(t, err)
	assert.NotContains(t, filter, "stock_quantity")
	assert.Equal(t, bson.M{"stock_quantity": 6}, update["$inc"])

	_, update, err = stockAdjustment(id, stockSet, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, update["$set"].(bson.M)["stock_quantity"])

	_, _, err = stockAdjustment(id, "multiply", 2)
	assert.Error(t, err)
	_, _, err = stockAdjustment(id, stockSet, -1)
	assert.Error(t, err)
}

func TestNormalizeProductDocument(t *testing.T) {
	p, err := normalizeProductDocument(bson.M{
		"name":           "Soap",
		"sku":            "SOAP-1",
		"price":          3.0,
		"cost_price":     2.0,
		"stock_quantity": "7",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, p.StockQuantity)
	assert.Equal(t, models.DefaultMinStockLevel, p.MinStockLevel)
	assert.Equal(t, "pcs", p.Unit)
	assert.True(t, p.IsLowStock)
	require.NotNil(t, p.ProfitMargin)
	assert.Equal(t, 50.0, *p.ProfitMargin)

	p, err = normalizeProductDocument(bson.M{"stock_quantity": 12.0, "min_stock_level": int64(3), "unit": "kg"})
	require.NoError(t, err)
	assert.Equal(t, 12, p.StockQuantity)
	assert.Equal(t, 3, p.MinStockLevel)
	assert.Equal(t, "kg", p.Unit)
	assert.False(t, p.IsLowStock)
	assert.Nil(t, p.ProfitMargin)
}

func TestLowStockEvent(t *testing.T) {
	e := lowStockEvent(models.Product{Name: "Milk", SKU: "MILK", StockQuantity: 2, MinStockLevel: 5})
	assert.Equal(t, "low_stock", e.Type)
	assert.Contains(t, e.Message, "Milk")
}

func TestAdjustStockRejectsOverdraw(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insufficient stock", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, "db.products", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "name", Value: "Milk"},
				{Key: "sku", Value: "MILK"},
				{Key: "stock_quantity", Value: int32(1)},
			}),
		)

		r := gin.New()
		r.PATCH("/products/:id/stock", AdjustStock(mt.DB, nil))
		w := serve(r, http.MethodPatch, "/products/"+id.Hex()+"/stock", jsonBody(mt, StockAdjustRequest{Operation: stockSubtract, Quantity: 5}))

		assert.Equal(mt, http.StatusBadRequest, w.Code)
	})

	mt.Run("invalid operation", func(mt *mtest.T) {
		r := gin.New()
		r.PATCH("/products/:id/stock", AdjustStock(mt.DB, nil))
		w := serve(r, http.MethodPatch, "/products/"+primitive.NewObjectID().Hex()+"/stock", jsonBody(mt, gin.H{"operation": "double", "quantity": 1}))

		assert.Equal(mt, http.StatusBadRequest, w.Code)
		assert.Equal(mt, "validation failed", decodeBody(mt, w)["error"])
	})
}
