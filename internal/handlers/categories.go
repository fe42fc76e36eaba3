package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockpos/internal/models"
)

type CategoryCreateRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=500"`
	ParentID    string `json:"parent_id"`
	IsActive    *bool  `json:"is_active"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	ParentID    *string `json:"parent_id"`
	IsActive    *bool   `json:"is_active"`
}

// buildCategoryTree nests categories under their parents. Categories whose
// parent is missing from the input become roots.
func buildCategoryTree(categories []models.Category) []*models.CategoryNode {
	nodes := make(map[primitive.ObjectID]*models.CategoryNode, len(categories))
	for _, cat := range categories {
		nodes[cat.ID] = &models.CategoryNode{Category: cat, Children: []*models.CategoryNode{}}
	}

	roots := make([]*models.CategoryNode, 0)
	for _, cat := range categories {
		node := nodes[cat.ID]
		if cat.ParentID != nil {
			if parent, ok := nodes[*cat.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var sortNodes func([]*models.CategoryNode)
	sortNodes = func(list []*models.CategoryNode) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		for _, n := range list {
			sortNodes(n.Children)
		}
	}
	sortNodes(roots)
	return roots
}

// createsCycle reports whether giving id the parent newParent would make id
// its own ancestor. parents maps each category to its current parent.
func createsCycle(parents map[primitive.ObjectID]*primitive.ObjectID, id, newParent primitive.ObjectID) bool {
	seen := map[primitive.ObjectID]bool{}
	for cur := &newParent; cur != nil; cur = parents[*cur] {
		if *cur == id {
			return true
		}
		if seen[*cur] {
			return true
		}
		seen[*cur] = true
	}
	return false
}

func ListCategories(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/categories"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "name", "description")
		}
		isActive, err := parseBoolQuery(c.Query("is_active"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if isActive != nil {
			filter["is_active"] = *isActive
		}
		if raw := c.Query("parent_id"); raw != "" {
			if raw == "null" || raw == "root" {
				filter["parent_id"] = nil
			} else {
				parentID, err := primitive.ObjectIDFromHex(raw)
				if err != nil {
					respondWithError(c, http.StatusBadRequest, route, "invalid parent_id")
					return
				}
				filter["parent_id"] = parentID
			}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("categories")
		total, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := coll.Find(ctx, filter, options.Find().
			SetSort(bson.D{{Key: "name", Value: 1}}).
			SetSkip((page-1)*size).
			SetLimit(size))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		categories := make([]models.Category, 0)
		if err := cursor.All(ctx, &categories); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, paginatedResponse(categories, page, size, total))
	}
}

func CategoryTree(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/categories/tree"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("categories").Find(ctx, bson.M{"is_active": true})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		var categories []models.Category
		if err := cursor.All(ctx, &categories); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": buildCategoryTree(categories)})
	}
}

func CategoryStats(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/categories/stats"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("categories")
		total, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		active, err := coll.CountDocuments(ctx, bson.M{"is_active": true})
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := db.Collection("products").Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"is_deleted": bson.M{"$ne": true}, "category_id": bson.M{"$ne": nil}}}},
			{{Key: "$group", Value: bson.M{"_id": "$category_id", "count": bson.M{"$sum": 1}}}},
			{{Key: "$lookup", Value: bson.M{"from": "categories", "localField": "_id", "foreignField": "_id", "as": "category"}}},
			{{Key: "$unwind", Value: "$category"}},
			{{Key: "$project", Value: bson.M{"_id": 0, "category_id": "$_id", "name": "$category.name", "product_count": "$count"}}},
			{{Key: "$sort", Value: bson.M{"product_count": -1}}},
		})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		counts := make([]bson.M, 0)
		if err := cursor.All(ctx, &counts); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total_categories":    total,
			"active_categories":   active,
			"inactive_categories": total - active,
			"product_counts":      counts,
		})
	}
}

func GetCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/categories/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var category models.Category
		err := db.Collection("categories").FindOne(ctx, bson.M{"_id": id}).Decode(&category)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "category not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, category)
	}
}

func CreateCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/categories"
		defer handlePanic(c, route)

		var req CategoryCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			respondWithError(c, http.StatusBadRequest, route, "name required")
			return
		}
		parentID, err := parseOptionalObjectID(req.ParentID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid parent_id")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("categories")
		count, err := coll.CountDocuments(ctx, bson.M{"name": name})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusConflict, route, "category already exists")
			return
		}

		if parentID != nil {
			count, err := coll.CountDocuments(ctx, bson.M{"_id": *parentID})
			if err != nil {
				respondDBError(c, route, err)
				return
			}
			if count == 0 {
				respondWithError(c, http.StatusBadRequest, route, "parent category not found")
				return
			}
		}

		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		now := time.Now().UTC()
		category := models.Category{
			Name:        name,
			Description: strings.TrimSpace(req.Description),
			ParentID:    parentID,
			IsActive:    isActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		result, err := coll.InsertOne(ctx, category)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "category already exists")
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

func UpdateCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/categories/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req CategoryUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("categories")
		set := bson.M{}
		unset := bson.M{}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				respondWithError(c, http.StatusBadRequest, route, "name cannot be empty")
				return
			}
			count, err := coll.CountDocuments(ctx, bson.M{"name": name, "_id": bson.M{"$ne": id}})
			if err != nil {
				respondDBError(c, route, err)
				return
			}
			if count > 0 {
				respondWithError(c, http.StatusConflict, route, "category already exists")
				return
			}
			set["name"] = name
		}
		if req.Description != nil {
			set["description"] = strings.TrimSpace(*req.Description)
		}
		if req.IsActive != nil {
			set["is_active"] = *req.IsActive
		}

		if req.ParentID != nil {
			parentID, err := parseOptionalObjectID(*req.ParentID)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid parent_id")
				return
			}
			if parentID == nil {
				unset["parent_id"] = ""
			} else {
				if *parentID == id {
					respondWithError(c, http.StatusBadRequest, route, "category cannot be its own parent")
					return
				}
				parents, err := loadCategoryParents(c, db)
				if err != nil {
					respondDBError(c, route, err)
					return
				}
				if _, ok := parents[*parentID]; !ok {
					respondWithError(c, http.StatusBadRequest, route, "parent category not found")
					return
				}
				if createsCycle(parents, id, *parentID) {
					respondWithError(c, http.StatusBadRequest, route, "category cannot be moved under its own descendant")
					return
				}
				set["parent_id"] = *parentID
			}
		}

		if len(set) == 0 && len(unset) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		set["updated_at"] = time.Now().UTC()

		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}

		var updated models.Category
		err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "category not found")
			return
		}
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "category already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func loadCategoryParents(c *gin.Context, db *mongo.Database) (map[primitive.ObjectID]*primitive.ObjectID, error) {
	ctx, cancel := requestContext(c)
	defer cancel()

	cursor, err := db.Collection("categories").Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1, "parent_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.Category
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	parents := make(map[primitive.ObjectID]*primitive.ObjectID, len(rows))
	for _, row := range rows {
		parents[row.ID] = row.ParentID
	}
	return parents, nil
}

func DeleteCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/categories/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		products, err := db.Collection("products").CountDocuments(ctx, bson.M{"category_id": id, "is_deleted": bson.M{"$ne": true}})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if products > 0 {
			respondWithError(c, http.StatusConflict, route, "category has products")
			return
		}

		children, err := db.Collection("categories").CountDocuments(ctx, bson.M{"parent_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if children > 0 {
			respondWithError(c, http.StatusConflict, route, "category has subcategories")
			return
		}

		result, err := db.Collection("categories").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "category not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
