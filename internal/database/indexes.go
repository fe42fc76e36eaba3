package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"stockpos/internal/logger"
)

// EnsureIndexes creates every index the application relies on. Failures are
// collected so one bad collection does not hide the others.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	steps := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"users", EnsureUserIndexes},
		{"products", EnsureProductIndexes},
		{"categories", EnsureCategoryIndexes},
		{"customers", EnsureCustomerIndexes},
		{"sales", EnsureSaleIndexes},
		{"suppliers", EnsureSupplierIndexes},
		{"expenses", EnsureExpenseIndexes},
		{"expense_categories", EnsureExpenseCategoryIndexes},
		{"tokens", EnsureTokenIndexes},
	}

	var errs []error
	for _, step := range steps {
		if err := step.fn(ctx, db); err != nil {
			logger.Named("database").Warn("index creation failed", zap.String("collection", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}

func createIndexes(ctx context.Context, db *mongo.Database, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	logger.Named("database").Info("indexes ensured", zap.String("collection", collection), zap.Strings("indexes", names))
	return nil
}

func EnsureUserIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "users", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName("username_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}},
			Options: options.Index().SetName("role_index"),
		},
	})
}

func EnsureProductIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "products", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetName("sku_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "barcode", Value: 1}},
			Options: options.Index().
				SetName("barcode_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"barcode": bson.M{"$type": "string", "$gt": ""},
				}),
		},
		{
			Keys:    bson.D{{Key: "category_id", Value: 1}},
			Options: options.Index().SetName("category_id_index"),
		},
		{
			Keys:    bson.D{{Key: "supplier_id", Value: 1}},
			Options: options.Index().SetName("supplier_id_index"),
		},
		{
			Keys:    bson.D{{Key: "is_active", Value: 1}, {Key: "stock_quantity", Value: 1}},
			Options: options.Index().SetName("active_stock_index"),
		},
	})
}

func EnsureCategoryIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "categories", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "parent_id", Value: 1}},
			Options: options.Index().SetName("parent_id_index"),
		},
	})
}

func EnsureCustomerIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "customers", []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("email_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"email": bson.M{"$type": "string", "$gt": ""},
				}),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_index"),
		},
	})
}

func EnsureSaleIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "sales", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sale_number", Value: 1}},
			Options: options.Index().SetName("sale_number_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_index"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("status_created_at_index"),
		},
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetName("customer_id_index"),
		},
		{
			Keys:    bson.D{{Key: "cashier_id", Value: 1}},
			Options: options.Index().SetName("cashier_id_index"),
		},
	})
}

func EnsureSupplierIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "suppliers", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "company_name", Value: 1}},
			Options: options.Index().SetName("company_name_unique").SetUnique(true),
		},
	})
}

func EnsureExpenseIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "expenses", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expense_date", Value: -1}},
			Options: options.Index().SetName("expense_date_index"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}},
			Options: options.Index().SetName("category_index"),
		},
	})
}

func EnsureExpenseCategoryIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, "expense_categories", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_unique_ci").SetUnique(true).SetCollation(CaseInsensitive),
		},
	})
}

// EnsureTokenIndexes covers refresh tokens and password reset tokens; both expire via TTL.
func EnsureTokenIndexes(ctx context.Context, db *mongo.Database) error {
	ttl := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetName("token_hash_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
		},
	}
	if err := createIndexes(ctx, db, "refresh_tokens", ttl); err != nil {
		return err
	}
	return createIndexes(ctx, db, "password_resets", ttl)
}
