package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockpos/internal/models"
)

// CaseInsensitive matches names regardless of letter case.
var CaseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// EnsureDefaultExpenseCategories inserts the built-in expense categories that
// are missing and reports how many were created. Running it again is a no-op.
func EnsureDefaultExpenseCategories(ctx context.Context, db *mongo.Database) (int64, error) {
	coll := db.Collection("expense_categories")
	now := time.Now().UTC()

	var created int64
	for _, cat := range models.DefaultExpenseCategories {
		res, err := coll.UpdateOne(ctx,
			bson.M{"name": cat.Name, "is_default": true},
			bson.M{"$setOnInsert": bson.M{
				"icon":       models.ExpenseCategoryIcon(cat.Icon),
				"is_active":  true,
				"created_by": "system",
				"created_at": now,
				"updated_at": now,
			}},
			options.Update().SetUpsert(true),
		)
		if mongo.IsDuplicateKeyError(err) {
			// a user category already holds the name
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed expense category %s: %w", cat.Name, err)
		}
		created += res.UpsertedCount
	}
	return created, nil
}
