package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SaleSequence = "sale_number"

type counter struct {
	ID            string `bson:"_id"`
	SequenceValue int64  `bson:"sequence_value"`
}

// NextSequence atomically increments and returns the named counter, creating it on first use.
func NextSequence(ctx context.Context, db *mongo.Database, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counter
	err := db.Collection("counters").FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"sequence_value": 1}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return c.SequenceValue, nil
}

func FormatSaleNumber(seq int64) string {
	return fmt.Sprintf("SALE-%06d", seq)
}
