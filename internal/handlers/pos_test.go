package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"stockpos/internal/models"
)

func TestRespondSaleError(t *testing.T) {
	productID := primitive.NewObjectID()
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "out of stock",
			err:    fmt.Errorf("placing sale: %w", outOfStockError{ProductID: productID, ProductName: "Milk", Available: 1, Requested: 3}),
			status: http.StatusBadRequest,
			body:   fmt.Sprintf(`{"error":"insufficient stock","product_id":%q,"product_name":"Milk","available":1,"requested":3}`, productID.Hex()),
		},
		{
			name:   "product missing",
			err:    productNotFoundError{ProductID: productID},
			status: http.StatusBadRequest,
			body:   fmt.Sprintf(`{"error":"product not found","product_id":%q}`, productID.Hex()),
		},
		{
			name:   "customer missing",
			err:    customerNotFoundError{},
			status: http.StatusBadRequest,
			body:   `{"error":"customer not found"}`,
		},
		{
			name:   "bad transition",
			err:    invalidTransitionError{From: models.SaleStatusRefunded, To: models.SaleStatusPending},
			status: http.StatusBadRequest,
			body:   `{"error":"cannot change sale status from refunded to pending"}`,
		},
		{
			name:   "underpaid",
			err:    paymentError{msg: "payment received is less than total"},
			status: http.StatusBadRequest,
			body:   `{"error":"payment received is less than total"}`,
		},
		{
			name:   "pricing",
			err:    pricingError{err: errors.New("discount exceeds line total")},
			status: http.StatusBadRequest,
			body:   `{"error":"discount exceeds line total"}`,
		},
		{
			name:   "anything else",
			err:    errors.New("connection reset"),
			status: http.StatusInternalServerError,
			body:   `{"error":"db error"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondSaleError(c, "POST /api/pos/sales", tc.err)

			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}
}

func TestCreateSaleRejectsBadInput(t *testing.T) {
	cashier := &models.User{ID: primitive.NewObjectID(), Username: "till", Role: models.RoleCashier, IsActive: true}
	productID := primitive.NewObjectID().Hex()

	cases := []struct {
		name string
		body gin.H
	}{
		{"no items", gin.H{"items": []gin.H{}, "payment_method": "cash"}},
		{"zero quantity", gin.H{"items": []gin.H{{"product_id": productID, "quantity": 0}}, "payment_method": "cash"}},
		{"unknown payment method", gin.H{"items": []gin.H{{"product_id": productID, "quantity": 1}}, "payment_method": "cheque"}},
		{"tax rate above one", gin.H{"items": []gin.H{{"product_id": productID, "quantity": 1}}, "payment_method": "cash", "tax_rate": 1.5}},
		{"bad product id", gin.H{"items": []gin.H{{"product_id": "abc", "quantity": 1}}, "payment_method": "cash"}},
		{"bad customer id", gin.H{"customer_id": "abc", "items": []gin.H{{"product_id": productID, "quantity": 1}}, "payment_method": "cash"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/sales", asUser(cashier), CreateSale(nil, nil, 0))
			w := serve(r, http.MethodPost, "/sales", jsonBody(t, tc.body))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSearchPOSProducts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns matches", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.products", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "name", Value: "Bread"},
			{Key: "sku", Value: "BRD-1"},
			{Key: "price", Value: 1.5},
			{Key: "stock_quantity", Value: int32(20)},
			{Key: "is_active", Value: true},
		}))

		r := gin.New()
		r.GET("/search", SearchPOSProducts(mt.DB))
		w := serve(r, http.MethodGet, "/search?query=bre&limit=5", nil)

		require.Equal(mt, http.StatusOK, w.Code)
		data := decodeBody(mt, w)["data"].([]interface{})
		require.Len(mt, data, 1)
		product := data[0].(map[string]interface{})
		assert.Equal(mt, "Bread", product["name"])
		assert.Equal(mt, false, product["is_low_stock"])
	})

	mt.Run("empty query", func(mt *mtest.T) {
		r := gin.New()
		r.GET("/search", SearchPOSProducts(mt.DB))
		w := serve(r, http.MethodGet, "/search", nil)

		assert.Equal(mt, http.StatusOK, w.Code)
		assert.JSONEq(mt, `{"data":[]}`, w.Body.String())
	})

	mt.Run("limit too large", func(mt *mtest.T) {
		r := gin.New()
		r.GET("/search", SearchPOSProducts(mt.DB))
		w := serve(r, http.MethodGet, "/search?query=x&limit=500", nil)

		assert.Equal(mt, http.StatusBadRequest, w.Code)
	})
}
