package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func upsertedResponse() bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: 1},
		bson.E{Key: "nModified", Value: 0},
		bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: primitive.NewObjectID()}}}},
	)
}

func matchedResponse() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0})
}

func TestEnsureDefaultExpenseCategories(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates missing categories only", func(mt *mtest.T) {
		mt.AddMockResponses(upsertedResponse(), matchedResponse())

		created, err := EnsureDefaultExpenseCategories(context.Background(), mt.DB)
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), created)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		require.Equal(mt, "update", started.CommandName)
		first := started.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, "Restocking", first.Lookup("q", "name").StringValue())
		assert.True(mt, first.Lookup("upsert").Boolean())
		assert.Equal(mt, "📦", first.Lookup("u", "$setOnInsert", "icon").StringValue())
	})

	mt.Run("second run is a no-op", func(mt *mtest.T) {
		mt.AddMockResponses(matchedResponse(), matchedResponse())

		created, err := EnsureDefaultExpenseCategories(context.Background(), mt.DB)
		require.NoError(mt, err)
		assert.Zero(mt, created)
	})

	mt.Run("name taken by a user category", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
			upsertedResponse(),
		)

		created, err := EnsureDefaultExpenseCategories(context.Background(), mt.DB)
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), created)
	})

	mt.Run("command error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value", Name: "BadValue"}))

		_, err := EnsureDefaultExpenseCategories(context.Background(), mt.DB)
		assert.ErrorContains(mt, err, "Restocking")
	})
}
