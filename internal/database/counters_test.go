package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestFormatSaleNumber(t *testing.T) {
	assert.Equal(t, "SALE-000001", FormatSaleNumber(1))
	assert.Equal(t, "SALE-004210", FormatSaleNumber(4210))
	assert.Equal(t, "SALE-1234567", FormatSaleNumber(1234567))
}

func TestNextSequence(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns incremented value", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: bson.D{
				{Key: "_id", Value: SaleSequence},
				{Key: "sequence_value", Value: int64(42)},
			}},
		))

		seq, err := NextSequence(context.Background(), mt.DB, SaleSequence)
		require.NoError(mt, err)
		assert.Equal(mt, int64(42), seq)
	})

	mt.Run("propagates command errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
			Name:    "BadValue",
		}))

		_, err := NextSequence(context.Background(), mt.DB, SaleSequence)
		require.Error(mt, err)
	})
}
