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

func TestListExpenseCategories(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("active only by default", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch,
			expenseCategoryDoc("Restocking", true),
			expenseCategoryDoc("Transport", false),
		))

		r := gin.New()
		r.GET("/expense-categories", ListExpenseCategories(mt.DB))
		w := serve(r, http.MethodGet, "/expense-categories", nil)

		require.Equal(mt, http.StatusOK, w.Code)
		body := decodeBody(mt, w)
		assert.Equal(mt, float64(2), body["total"])
		assert.Len(mt, body["categories"], 2)

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.True(mt, find.Command.Lookup("filter", "is_active").Boolean())
	})
}

func TestCreateExpenseCategory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("created with default icon", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.expense_categories", 0), mtest.CreateSuccessResponse())

		r := gin.New()
		r.POST("/expense-categories", asUser(stockManager), CreateExpenseCategory(mt.DB))
		w := serve(r, http.MethodPost, "/expense-categories", jsonBody(mt, ExpenseCategoryRequest{Name: " Transport "}))

		require.Equal(mt, http.StatusCreated, w.Code, w.Body.String())
		body := decodeBody(mt, w)
		assert.Equal(mt, "Transport", body["name"])
		assert.Equal(mt, "📝", body["icon"])
		assert.Equal(mt, false, body["is_default"])
		assert.Equal(mt, "stock", body["created_by"])
	})

	mt.Run("name clash ignores case", func(mt *mtest.T) {
		mt.AddMockResponses(countResponse("db.expense_categories", 1))

		r := gin.New()
		r.POST("/expense-categories", asUser(stockManager), CreateExpenseCategory(mt.DB))
		w := serve(r, http.MethodPost, "/expense-categories", jsonBody(mt, ExpenseCategoryRequest{Name: "RESTOCKING"}))

		assert.Equal(mt, http.StatusConflict, w.Code)
		count := mt.GetStartedEvent()
		require.NotNil(mt, count)
		assert.Equal(mt, int32(2), count.Command.Lookup("collation", "strength").Int32())
	})
}

func TestUpdateExpenseCategory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("defaults are read-only", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch, expenseCategoryDoc("Restocking", true)))

		r := gin.New()
		r.PUT("/expense-categories/:id", UpdateExpenseCategory(mt.DB))
		w := serve(r, http.MethodPut, "/expense-categories/"+primitive.NewObjectID().Hex(), jsonBody(mt, gin.H{"name": "Stock"}))

		assert.Equal(mt, http.StatusBadRequest, w.Code)
		assert.JSONEq(mt, `{"error":"default expense categories cannot be changed"}`, w.Body.String())
	})

	mt.Run("rename carries over to expenses", func(mt *mtest.T) {
		doc := expenseCategoryDoc("Transport", false)
		id := doc[0].Value.(primitive.ObjectID)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch, doc),
			countResponse("db.expense_categories", 0),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "_id", Value: id}, {Key: "name", Value: "Fuel"}}}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}, bson.E{Key: "nModified", Value: 3}),
		)

		r := gin.New()
		r.PUT("/expense-categories/:id", asUser(stockManager), UpdateExpenseCategory(mt.DB))
		w := serve(r, http.MethodPut, "/expense-categories/"+id.Hex(), jsonBody(mt, gin.H{"name": "Fuel"}))

		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(mt, "Fuel", decodeBody(mt, w)["name"])

		var rename bson.Raw
		for _, ev := range mt.GetAllStartedEvents() {
			if ev.CommandName == "update" {
				rename = ev.Command
			}
		}
		require.NotNil(mt, rename)
		stmt := rename.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, "Transport", stmt.Lookup("q", "category").StringValue())
		assert.Equal(mt, "Fuel", stmt.Lookup("u", "$set", "category").StringValue())
	})

	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch))

		r := gin.New()
		r.PUT("/expense-categories/:id", UpdateExpenseCategory(mt.DB))
		w := serve(r, http.MethodPut, "/expense-categories/"+primitive.NewObjectID().Hex(), jsonBody(mt, gin.H{"icon": "⛽"}))

		assert.Equal(mt, http.StatusNotFound, w.Code)
	})
}

func TestDeleteExpenseCategory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("in use", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch, expenseCategoryDoc("Transport", false)),
			countResponse("db.expenses", 4),
		)

		r := gin.New()
		r.DELETE("/expense-categories/:id", DeleteExpenseCategory(mt.DB))
		w := serve(r, http.MethodDelete, "/expense-categories/"+primitive.NewObjectID().Hex(), nil)

		assert.Equal(mt, http.StatusConflict, w.Code)
		assert.JSONEq(mt, `{"error":"expense category is used by 4 expense(s)"}`, w.Body.String())
	})

	mt.Run("default", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch, expenseCategoryDoc("Stocking", true)))

		r := gin.New()
		r.DELETE("/expense-categories/:id", DeleteExpenseCategory(mt.DB))
		w := serve(r, http.MethodDelete, "/expense-categories/"+primitive.NewObjectID().Hex(), nil)

		assert.Equal(mt, http.StatusBadRequest, w.Code)
	})

	mt.Run("unused", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.expense_categories", mtest.FirstBatch, expenseCategoryDoc("Transport", false)),
			countResponse("db.expenses", 0),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		r := gin.New()
		r.DELETE("/expense-categories/:id", DeleteExpenseCategory(mt.DB))
		w := serve(r, http.MethodDelete, "/expense-categories/"+primitive.NewObjectID().Hex(), nil)

		assert.Equal(mt, http.StatusNoContent, w.Code)
	})
}
