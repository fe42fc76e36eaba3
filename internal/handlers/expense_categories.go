package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockpos/internal/database"
	"stockpos/internal/models"
)

type ExpenseCategoryRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
	Icon string `json:"icon" binding:"max=10"`
}

type ExpenseCategoryUpdateRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=100"`
	Icon     *string `json:"icon" binding:"omitempty,max=10"`
	IsActive *bool   `json:"is_active"`
}

var errUnknownExpenseCategory = errors.New("unknown expense category")

// resolveExpenseCategory returns the stored spelling of an active category name.
func resolveExpenseCategory(ctx context.Context, db *mongo.Database, name string) (string, error) {
	var cat models.ExpenseCategory
	err := db.Collection("expense_categories").FindOne(ctx,
		bson.M{"name": strings.TrimSpace(name), "is_active": true},
		options.FindOne().SetCollation(database.CaseInsensitive),
	).Decode(&cat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", errUnknownExpenseCategory
	}
	if err != nil {
		return "", err
	}
	return cat.Name, nil
}

// respondCategoryLookup reports whether the lookup failed and a response was written.
func respondCategoryLookup(c *gin.Context, route string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, errUnknownExpenseCategory):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	default:
		respondDBError(c, route, err)
	}
	return true
}

func expenseCategoryNameTaken(ctx context.Context, db *mongo.Database, name string, except primitive.ObjectID) (bool, error) {
	filter := bson.M{"name": name}
	if !except.IsZero() {
		filter["_id"] = bson.M{"$ne": except}
	}
	count, err := db.Collection("expense_categories").CountDocuments(ctx, filter,
		options.Count().SetCollation(database.CaseInsensitive))
	return count > 0, err
}

func ListExpenseCategories(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/expense-categories"
		defer handlePanic(c, route)

		includeInactive, err := parseBoolQuery(c.Query("include_inactive"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		filter := bson.M{"is_active": true}
		if includeInactive != nil && *includeInactive {
			filter = bson.M{}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("expense_categories").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		categories := make([]models.ExpenseCategory, 0)
		if err := cursor.All(ctx, &categories); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"categories": categories, "total": len(categories)})
	}
}

func CreateExpenseCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/expense-categories"
		defer handlePanic(c, route)

		var req ExpenseCategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		username, _ := currentUserName(c)

		ctx, cancel := requestContext(c)
		defer cancel()

		name := strings.TrimSpace(req.Name)
		taken, err := expenseCategoryNameTaken(ctx, db, name, primitive.NilObjectID)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if taken {
			respondWithError(c, http.StatusConflict, route, "expense category already exists")
			return
		}

		now := time.Now().UTC()
		category := models.ExpenseCategory{
			Name:      name,
			Icon:      models.ExpenseCategoryIcon(strings.TrimSpace(req.Icon)),
			IsActive:  true,
			CreatedBy: username,
			CreatedAt: now,
			UpdatedAt: now,
		}

		result, err := db.Collection("expense_categories").InsertOne(ctx, category)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "expense category already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		category.ID, _ = result.InsertedID.(primitive.ObjectID)

		c.JSON(http.StatusCreated, category)
	}
}

// loadEditableCategory writes a 404 or 400 and returns false when the category
// is missing or is one of the defaults.
func loadEditableCategory(ctx context.Context, c *gin.Context, db *mongo.Database, id primitive.ObjectID, route string) (*models.ExpenseCategory, bool) {
	var existing models.ExpenseCategory
	err := db.Collection("expense_categories").FindOne(ctx, bson.M{"_id": id}).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		respondWithError(c, http.StatusNotFound, route, "expense category not found")
		return nil, false
	}
	if err != nil {
		respondDBError(c, route, err)
		return nil, false
	}
	if existing.IsDefault {
		respondWithError(c, http.StatusBadRequest, route, "default expense categories cannot be changed")
		return nil, false
	}
	return &existing, true
}

// UpdateExpenseCategory renames the category on existing expenses as well.
func UpdateExpenseCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/expense-categories/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req ExpenseCategoryUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		existing, ok := loadEditableCategory(ctx, c, db, id, route)
		if !ok {
			return
		}

		set := bson.M{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name != existing.Name {
				taken, err := expenseCategoryNameTaken(ctx, db, name, id)
				if err != nil {
					respondDBError(c, route, err)
					return
				}
				if taken {
					respondWithError(c, http.StatusConflict, route, "expense category already exists")
					return
				}
				set["name"] = name
			}
		}
		if req.Icon != nil {
			set["icon"] = models.ExpenseCategoryIcon(strings.TrimSpace(*req.Icon))
		}
		if req.IsActive != nil {
			set["is_active"] = *req.IsActive
		}
		if len(set) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		set["updated_at"] = time.Now().UTC()
		if username, ok := currentUserName(c); ok {
			set["updated_by"] = username
		}

		var updated models.ExpenseCategory
		err := db.Collection("expense_categories").FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "expense category not found")
			return
		}
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "expense category already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		if name, renamed := set["name"].(string); renamed {
			if _, err := db.Collection("expenses").UpdateMany(ctx,
				bson.M{"category": existing.Name},
				bson.M{"$set": bson.M{"category": name}},
			); err != nil {
				respondDBError(c, route, err)
				return
			}
		}

		c.JSON(http.StatusOK, updated)
	}
}

func DeleteExpenseCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/expense-categories/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		existing, ok := loadEditableCategory(ctx, c, db, id, route)
		if !ok {
			return
		}

		inUse, err := db.Collection("expenses").CountDocuments(ctx, bson.M{"category": existing.Name})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if inUse > 0 {
			respondWithError(c, http.StatusConflict, route, fmt.Sprintf("expense category is used by %d expense(s)", inUse))
			return
		}

		result, err := db.Collection("expense_categories").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "expense category not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
