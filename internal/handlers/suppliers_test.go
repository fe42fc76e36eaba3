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

func supplierDoc(id primitive.ObjectID, name string, active bool) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "company_name", Value: name},
		{Key: "is_active", Value: active},
	}
}

func TestSupplierActivation(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	id := primitive.NewObjectID()

	mt.Run("activate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: supplierDoc(id, "Kampala Grains", true)}))

		r := gin.New()
		r.PATCH("/suppliers/:id/activate", ActivateSupplier(mt.DB))
		w := serve(r, http.MethodPatch, "/suppliers/"+id.Hex()+"/activate", nil)

		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(mt, true, decodeBody(mt, w)["is_active"])

		cmd := mt.GetStartedEvent()
		require.NotNil(mt, cmd)
		assert.True(mt, cmd.Command.Lookup("update", "$set", "is_active").Boolean())
	})

	mt.Run("deactivate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: supplierDoc(id, "Kampala Grains", false)}))

		r := gin.New()
		r.PATCH("/suppliers/:id/deactivate", DeactivateSupplier(mt.DB))
		w := serve(r, http.MethodPatch, "/suppliers/"+id.Hex()+"/deactivate", nil)

		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(mt, false, decodeBody(mt, w)["is_active"])

		cmd := mt.GetStartedEvent()
		require.NotNil(mt, cmd)
		assert.False(mt, cmd.Command.Lookup("update", "$set", "is_active").Boolean())
	})

	mt.Run("unknown supplier", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		r := gin.New()
		r.PATCH("/suppliers/:id/deactivate", DeactivateSupplier(mt.DB))
		w := serve(r, http.MethodPatch, "/suppliers/"+id.Hex()+"/deactivate", nil)

		assert.Equal(mt, http.StatusNotFound, w.Code)
	})
}

func TestSupplierNameIsUnique(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create with a taken name", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.suppliers", 1))

		r := gin.New()
		r.POST("/suppliers", CreateSupplier(mt.DB))
		w := serve(r, http.MethodPost, "/suppliers", jsonBody(mt, SupplierRequest{CompanyName: "Kampala Grains"}))

		assert.Equal(mt, http.StatusConflict, w.Code)
		assert.JSONEq(mt, `{"error":"supplier already exists"}`, w.Body.String())
	})

	mt.Run("create racing the unique index", func(mt *mtest.T) {
		mt.AddMockResponses(
			countResponse("db.suppliers", 0),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
		)

		r := gin.New()
		r.POST("/suppliers", CreateSupplier(mt.DB))
		w := serve(r, http.MethodPost, "/suppliers", jsonBody(mt, SupplierRequest{CompanyName: "Kampala Grains"}))

		assert.Equal(mt, http.StatusConflict, w.Code)
	})

	mt.Run("rename onto another supplier", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.suppliers", 1))

		r := gin.New()
		r.PUT("/suppliers/:id", UpdateSupplier(mt.DB))
		w := serve(r, http.MethodPut, "/suppliers/"+primitive.NewObjectID().Hex(), jsonBody(mt, gin.H{"company_name": "Kampala Grains"}))

		assert.Equal(mt, http.StatusConflict, w.Code)
	})

	mt.Run("created", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.suppliers", 0), mtest.CreateSuccessResponse())

		r := gin.New()
		r.POST("/suppliers", CreateSupplier(mt.DB))
		w := serve(r, http.MethodPost, "/suppliers", jsonBody(mt, SupplierRequest{CompanyName: " Kampala Grains ", Email: "Sales@Grains.ug"}))

		require.Equal(mt, http.StatusCreated, w.Code, w.Body.String())
		body := decodeBody(mt, w)
		assert.Equal(mt, "Kampala Grains", body["company_name"])
		assert.Equal(mt, "sales@grains.ug", body["email"])
		assert.Equal(mt, true, body["is_active"])
	})
}

func TestSupplierDropdown(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("active suppliers only", func(mt *mtest.T) {
		first, second := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.suppliers", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: first}, {Key: "company_name", Value: "Acme"}},
			bson.D{{Key: "_id", Value: second}, {Key: "company_name", Value: "Kampala Grains"}},
		))

		r := gin.New()
		r.GET("/suppliers/dropdown", SupplierDropdown(mt.DB))
		w := serve(r, http.MethodGet, "/suppliers/dropdown", nil)

		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(mt, w)
		assert.Equal(mt, float64(2), body["total"])
		assert.Equal(mt, []interface{}{
			map[string]interface{}{"id": first.Hex(), "company_name": "Acme"},
			map[string]interface{}{"id": second.Hex(), "company_name": "Kampala Grains"},
		}, body["suppliers"])

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.True(mt, find.Command.Lookup("filter", "is_active").Boolean())
	})
}
