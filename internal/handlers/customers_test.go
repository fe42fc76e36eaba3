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
)

func TestParseBirthDate(t *testing.T) {
	d, err := parseBirthDate(nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	raw := "1990-07-14"
	d, err = parseBirthDate(&raw)
	require.NoError(t, err)
	assert.Equal(t, 1990, d.Year())

	bad := "14/07/1990"
	_, err = parseBirthDate(&bad)
	assert.Error(t, err)
}

func TestCreateCustomer(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("created with lowercased email", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.customers", 0), mtest.CreateSuccessResponse())

		r := gin.New()
		r.POST("/customers", CreateCustomer(mt.DB))
		w := serve(r, http.MethodPost, "/customers", jsonBody(mt, gin.H{"name": " Amina ", "email": "Amina@Example.com"}))

		require.Equal(mt, http.StatusCreated, w.Code, w.Body.String())
		body := decodeBody(mt, w)
		assert.Equal(mt, "Amina", body["name"])
		assert.Equal(mt, "amina@example.com", body["email"])
		assert.Equal(mt, true, body["is_active"])
	})

	mt.Run("duplicate email", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.customers", 1))

		r := gin.New()
		r.POST("/customers", CreateCustomer(mt.DB))
		w := serve(r, http.MethodPost, "/customers", jsonBody(mt, gin.H{"name": "Amina", "email": "amina@example.com"}))

		assert.Equal(mt, http.StatusConflict, w.Code)
	})

	mt.Run("walk-in without email skips uniqueness", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		r := gin.New()
		r.POST("/customers", CreateCustomer(mt.DB))
		w := serve(r, http.MethodPost, "/customers", jsonBody(mt, gin.H{"name": "Walk-in"}))

		assert.Equal(mt, http.StatusCreated, w.Code)
	})

	mt.Run("bad birth date", func(mt *mtest.T) {
		r := gin.New()
		r.POST("/customers", CreateCustomer(mt.DB))
		w := serve(r, http.MethodPost, "/customers", jsonBody(mt, gin.H{"name": "Amina", "date_of_birth": "yesterday"}))

		assert.Equal(mt, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteSupplierInUse(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("referenced by products", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.products", 3))

		r := gin.New()
		r.DELETE("/suppliers/:id", DeleteSupplier(mt.DB))
		w := serve(r, http.MethodDelete, "/suppliers/"+primitive.NewObjectID().Hex(), nil)

		assert.Equal(mt, http.StatusConflict, w.Code)
		assert.JSONEq(mt, `{"error":"supplier has products"}`, w.Body.String())
	})

	mt.Run("unknown supplier", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.products", mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		r := gin.New()
		r.DELETE("/suppliers/:id", DeleteSupplier(mt.DB))
		w := serve(r, http.MethodDelete, "/suppliers/"+primitive.NewObjectID().Hex(), nil)

		assert.Equal(mt, http.StatusNotFound, w.Code)
	})
}
