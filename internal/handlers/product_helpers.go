package handlers

import (
	"context"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"stockpos/internal/models"
)

// activeProductFilter matches products that have not been soft deleted.
func activeProductFilter() bson.M {
	return bson.M{"is_deleted": bson.M{"$ne": true}}
}

// normalizeProductDocument coerces numeric fields that spreadsheet imports
// store as doubles or strings back into the types the model expects.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	for _, key := range []string{"stock_quantity", "min_stock_level"} {
		val, ok := raw[key]
		if !ok {
			if key == "min_stock_level" {
				raw[key] = models.DefaultMinStockLevel
			} else {
				raw[key] = 0
			}
			continue
		}
		switch typed := val.(type) {
		case int32:
			raw[key] = int(typed)
		case int64:
			raw[key] = int(typed)
		case float64:
			raw[key] = int(typed)
		case int:
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(typed))
			if err != nil {
				n = 0
			}
			raw[key] = n
		default:
			raw[key] = 0
		}
	}
	if unit, _ := raw["unit"].(string); unit == "" {
		raw["unit"] = "pcs"
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}

	p.Derive()
	return p, nil
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// attachCategoryNames fills CategoryName with one query for the whole page.
func attachCategoryNames(ctx context.Context, db *mongo.Database, products []models.Product) error {
	seen := map[primitive.ObjectID]struct{}{}
	ids := make([]primitive.ObjectID, 0)
	for _, p := range products {
		if p.CategoryID == nil {
			continue
		}
		if _, ok := seen[*p.CategoryID]; ok {
			continue
		}
		seen[*p.CategoryID] = struct{}{}
		ids = append(ids, *p.CategoryID)
	}
	if len(ids) == 0 {
		return nil
	}

	cursor, err := db.Collection("categories").Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var categories []models.Category
	if err := cursor.All(ctx, &categories); err != nil {
		return err
	}

	names := make(map[primitive.ObjectID]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}
	for i := range products {
		if products[i].CategoryID != nil {
			products[i].CategoryName = names[*products[i].CategoryID]
		}
	}
	return nil
}

func findProduct(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (models.Product, error) {
	filter := activeProductFilter()
	filter["_id"] = id

	var raw bson.M
	if err := db.Collection("products").FindOne(ctx, filter).Decode(&raw); err != nil {
		return models.Product{}, err
	}
	return normalizeProductDocument(raw)
}
