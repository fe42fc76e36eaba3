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
	"go.uber.org/zap"

	"stockpos/internal/logger"
	"stockpos/internal/models"
	"stockpos/internal/notify"
)

type ProductCreateRequest struct {
	Name          string   `json:"name" binding:"required,min=1,max=200"`
	Description   string   `json:"description" binding:"max=1000"`
	SKU           string   `json:"sku" binding:"required,min=1,max=50"`
	Barcode       string   `json:"barcode" binding:"max=50"`
	CategoryID    string   `json:"category_id"`
	Price         float64  `json:"price" binding:"required,gt=0"`
	CostPrice     float64  `json:"cost_price" binding:"gte=0"`
	StockQuantity int      `json:"stock_quantity" binding:"gte=0"`
	MinStockLevel *int     `json:"min_stock_level" binding:"omitempty,gte=0"`
	MaxStockLevel *int     `json:"max_stock_level" binding:"omitempty,gte=0"`
	Unit          string   `json:"unit" binding:"max=20"`
	SupplierID    string   `json:"supplier_id"`
	Supplier      string   `json:"supplier" binding:"max=200"`
	Tags          []string `json:"tags"`
	IsActive      *bool    `json:"is_active"`
}

type ProductUpdateRequest struct {
	Name          *string   `json:"name" binding:"omitempty,min=1,max=200"`
	Description   *string   `json:"description" binding:"omitempty,max=1000"`
	SKU           *string   `json:"sku" binding:"omitempty,min=1,max=50"`
	Barcode       *string   `json:"barcode" binding:"omitempty,max=50"`
	CategoryID    *string   `json:"category_id"`
	Price         *float64  `json:"price" binding:"omitempty,gt=0"`
	CostPrice     *float64  `json:"cost_price" binding:"omitempty,gte=0"`
	StockQuantity *int      `json:"stock_quantity" binding:"omitempty,gte=0"`
	MinStockLevel *int      `json:"min_stock_level" binding:"omitempty,gte=0"`
	MaxStockLevel *int      `json:"max_stock_level" binding:"omitempty,gte=0"`
	Unit          *string   `json:"unit" binding:"omitempty,max=20"`
	SupplierID    *string   `json:"supplier_id"`
	Supplier      *string   `json:"supplier" binding:"omitempty,max=200"`
	Tags          *[]string `json:"tags"`
	IsActive      *bool     `json:"is_active"`
}

const (
	stockSet      = "set"
	stockAdd      = "add"
	stockSubtract = "subtract"
)

type StockAdjustRequest struct {
	Operation string `json:"operation" binding:"required,oneof=set add subtract"`
	Quantity  int    `json:"quantity" binding:"gte=0"`
	Reason    string `json:"reason" binding:"max=200"`
}

var errInsufficientStock = errors.New("insufficient stock")

// stockAdjustment builds the guarded filter and update for a stock operation.
func stockAdjustment(id primitive.ObjectID, op string, qty int) (bson.M, bson.M, error) {
	if qty < 0 {
		return nil, nil, fmt.Errorf("quantity must not be negative")
	}
	filter := activeProductFilter()
	filter["_id"] = id
	now := time.Now().UTC()

	switch op {
	case stockSet:
		return filter, bson.M{"$set": bson.M{"stock_quantity": qty, "updated_at": now}}, nil
	case stockAdd:
		return filter, bson.M{"$inc": bson.M{"stock_quantity": qty}, "$set": bson.M{"updated_at": now}}, nil
	case stockSubtract:
		filter["stock_quantity"] = bson.M{"$gte": qty}
		return filter, bson.M{"$inc": bson.M{"stock_quantity": -qty}, "$set": bson.M{"updated_at": now}}, nil
	default:
		return nil, nil, fmt.Errorf("invalid operation: %s", op)
	}
}

// checkProductRefs validates optional category and supplier references and
// returns the supplier's company name when one is set.
func checkProductRefs(ctx context.Context, db *mongo.Database, categoryID, supplierID *primitive.ObjectID) (string, int, string) {
	if categoryID != nil {
		count, err := db.Collection("categories").CountDocuments(ctx, bson.M{"_id": *categoryID})
		if err != nil {
			return "", http.StatusInternalServerError, "db error"
		}
		if count == 0 {
			return "", http.StatusBadRequest, "category not found"
		}
	}
	if supplierID != nil {
		var supplier models.Supplier
		err := db.Collection("suppliers").FindOne(ctx, bson.M{"_id": *supplierID}).Decode(&supplier)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", http.StatusBadRequest, "supplier not found"
		}
		if err != nil {
			return "", http.StatusInternalServerError, "db error"
		}
		return supplier.CompanyName, http.StatusOK, ""
	}
	return "", http.StatusOK, ""
}

// checkProductUnique returns a conflict message when sku or barcode is taken
// by a product other than exclude.
func checkProductUnique(ctx context.Context, db *mongo.Database, sku, barcode string, exclude *primitive.ObjectID) (int, string) {
	coll := db.Collection("products")
	check := func(field, value string) (bool, error) {
		filter := bson.M{field: value}
		if exclude != nil {
			filter["_id"] = bson.M{"$ne": *exclude}
		}
		count, err := coll.CountDocuments(ctx, filter)
		return count > 0, err
	}

	if sku != "" {
		taken, err := check("sku", sku)
		if err != nil {
			return http.StatusInternalServerError, "db error"
		}
		if taken {
			return http.StatusConflict, "sku already exists"
		}
	}
	if barcode != "" {
		taken, err := check("barcode", barcode)
		if err != nil {
			return http.StatusInternalServerError, "db error"
		}
		if taken {
			return http.StatusConflict, "barcode already exists"
		}
	}
	return http.StatusOK, ""
}

func productListFilter(c *gin.Context) (bson.M, error) {
	filter := activeProductFilter()

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter["$or"] = searchFilter(search, "name", "sku", "barcode", "supplier")
	}
	if raw := strings.TrimSpace(c.Query("category_id")); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid category_id")
		}
		filter["category_id"] = id
	}
	if raw := strings.TrimSpace(c.Query("supplier_id")); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid supplier_id")
		}
		filter["supplier_id"] = id
	}
	isActive, err := parseBoolQuery(c.Query("is_active"))
	if err != nil {
		return nil, err
	}
	if isActive != nil {
		filter["is_active"] = *isActive
	}
	lowOnly, err := parseBoolQuery(c.Query("low_stock_only"))
	if err != nil {
		return nil, err
	}
	if lowOnly != nil && *lowOnly {
		filter["$expr"] = bson.M{"$lte": bson.A{"$stock_quantity", "$min_stock_level"}}
	}
	return filter, nil
}

func ListProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		filter, err := productListFilter(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("products")
		total, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := coll.Find(ctx, filter, options.Find().
			SetSkip((page-1)*size).
			SetLimit(size).
			SetSort(bson.D{{Key: "name", Value: 1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if err := attachCategoryNames(ctx, db, products); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, paginatedResponse(products, page, size, total))
	}
}

func LowStockProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/low-stock"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		filter := activeProductFilter()
		filter["is_active"] = true
		filter["$expr"] = bson.M{"$lte": bson.A{"$stock_quantity", "$min_stock_level"}}

		cursor, err := db.Collection("products").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "stock_quantity", Value: 1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if err := attachCategoryNames(ctx, db, products); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": products, "total": len(products)})
	}
}

func GetProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := findProduct(ctx, db, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		products := []models.Product{product}
		if err := attachCategoryNames(ctx, db, products); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, products[0])
	}
}

func CreateProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"
		defer handlePanic(c, route)

		var req ProductCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		categoryID, err := parseOptionalObjectID(req.CategoryID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid category_id")
			return
		}
		supplierID, err := parseOptionalObjectID(req.SupplierID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid supplier_id")
			return
		}

		sku := strings.TrimSpace(req.SKU)
		barcode := strings.TrimSpace(req.Barcode)

		ctx, cancel := requestContext(c)
		defer cancel()

		if status, msg := checkProductUnique(ctx, db, sku, barcode, nil); status != http.StatusOK {
			respondWithError(c, status, route, msg)
			return
		}
		supplierName, status, msg := checkProductRefs(ctx, db, categoryID, supplierID)
		if status != http.StatusOK {
			respondWithError(c, status, route, msg)
			return
		}
		if s := strings.TrimSpace(req.Supplier); s != "" {
			supplierName = s
		}

		minStock := models.DefaultMinStockLevel
		if req.MinStockLevel != nil {
			minStock = *req.MinStockLevel
		}
		unit := strings.TrimSpace(req.Unit)
		if unit == "" {
			unit = "pcs"
		}
		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		now := time.Now().UTC()
		product := models.Product{
			Name:          strings.TrimSpace(req.Name),
			Description:   strings.TrimSpace(req.Description),
			SKU:           sku,
			Barcode:       barcode,
			CategoryID:    categoryID,
			Price:         req.Price,
			CostPrice:     req.CostPrice,
			StockQuantity: req.StockQuantity,
			MinStockLevel: minStock,
			MaxStockLevel: req.MaxStockLevel,
			Unit:          unit,
			SupplierID:    supplierID,
			Supplier:      supplierName,
			Tags:          models.SplitTags(strings.Join(req.Tags, ",")),
			IsActive:      isActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		result, err := db.Collection("products").InsertOne(ctx, product)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "sku or barcode already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		product.ID, _ = result.InsertedID.(primitive.ObjectID)
		product.Derive()

		logger.Named("products").Info("product created", zap.String("sku", product.SKU), zap.String("id", product.ID.Hex()))
		c.JSON(http.StatusCreated, product)
	}
}

func UpdateProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req ProductUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		set := bson.M{}
		unset := bson.M{}

		var sku, barcode string
		if req.SKU != nil {
			sku = strings.TrimSpace(*req.SKU)
			set["sku"] = sku
		}
		if req.Barcode != nil {
			barcode = strings.TrimSpace(*req.Barcode)
			if barcode == "" {
				unset["barcode"] = ""
			} else {
				set["barcode"] = barcode
			}
		}

		var categoryID, supplierID *primitive.ObjectID
		if req.CategoryID != nil {
			parsed, err := parseOptionalObjectID(*req.CategoryID)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid category_id")
				return
			}
			categoryID = parsed
			if parsed == nil {
				unset["category_id"] = ""
			} else {
				set["category_id"] = *parsed
			}
		}
		if req.SupplierID != nil {
			parsed, err := parseOptionalObjectID(*req.SupplierID)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid supplier_id")
				return
			}
			supplierID = parsed
			if parsed == nil {
				unset["supplier_id"] = ""
			} else {
				set["supplier_id"] = *parsed
			}
		}

		if req.Name != nil {
			set["name"] = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			set["description"] = strings.TrimSpace(*req.Description)
		}
		if req.Price != nil {
			set["price"] = *req.Price
		}
		if req.CostPrice != nil {
			set["cost_price"] = *req.CostPrice
		}
		if req.StockQuantity != nil {
			set["stock_quantity"] = *req.StockQuantity
		}
		if req.MinStockLevel != nil {
			set["min_stock_level"] = *req.MinStockLevel
		}
		if req.MaxStockLevel != nil {
			set["max_stock_level"] = *req.MaxStockLevel
		}
		if req.Unit != nil {
			set["unit"] = strings.TrimSpace(*req.Unit)
		}
		if req.Supplier != nil {
			set["supplier"] = strings.TrimSpace(*req.Supplier)
		}
		if req.Tags != nil {
			set["tags"] = models.SplitTags(strings.Join(*req.Tags, ","))
		}
		if req.IsActive != nil {
			set["is_active"] = *req.IsActive
		}

		if len(set) == 0 && len(unset) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if status, msg := checkProductUnique(ctx, db, sku, barcode, &id); status != http.StatusOK {
			respondWithError(c, status, route, msg)
			return
		}
		supplierName, status, msg := checkProductRefs(ctx, db, categoryID, supplierID)
		if status != http.StatusOK {
			respondWithError(c, status, route, msg)
			return
		}
		if supplierName != "" && req.Supplier == nil {
			set["supplier"] = supplierName
		}
		set["updated_at"] = time.Now().UTC()

		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}

		filter := activeProductFilter()
		filter["_id"] = id

		var raw bson.M
		err := db.Collection("products").FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "sku or barcode already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, product)
	}
}

func AdjustStock(db *mongo.Database, pub notify.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/products/:id/stock"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req StockAdjustRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		filter, update, err := stockAdjustment(id, req.Operation, req.Quantity)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var raw bson.M
		err = db.Collection("products").FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			if req.Operation != stockSubtract {
				respondWithError(c, http.StatusNotFound, route, "product not found")
				return
			}
			// the guard failed: either the product is gone or stock is short
			if _, findErr := findProduct(ctx, db, id); errors.Is(findErr, mongo.ErrNoDocuments) {
				respondWithError(c, http.StatusNotFound, route, "product not found")
				return
			}
			respondWithError(c, http.StatusBadRequest, route, errInsufficientStock.Error())
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		user, _ := currentUserName(c)
		logger.Named("stock").Info("stock adjusted",
			zap.String("product_id", id.Hex()),
			zap.String("operation", req.Operation),
			zap.Int("quantity", req.Quantity),
			zap.Int("stock_quantity", product.StockQuantity),
			zap.String("reason", req.Reason),
			zap.String("user", user))

		if product.IsLowStock {
			publish(pub, lowStockEvent(product))
		}

		c.JSON(http.StatusOK, product)
	}
}

func DeleteProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		filter := activeProductFilter()
		filter["_id"] = id
		now := time.Now().UTC()

		result, err := db.Collection("products").UpdateOne(ctx, filter, bson.M{"$set": bson.M{
			"is_deleted": true,
			"is_active":  false,
			"deleted_at": now,
			"updated_at": now,
		}})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if result.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func lowStockEvent(p models.Product) notify.Event {
	return notify.Event{
		Type:    notify.EventLowStock,
		Message: fmt.Sprintf("%s is low on stock (%d left)", p.Name, p.StockQuantity),
		Data: gin.H{
			"product_id":      p.ID.Hex(),
			"name":            p.Name,
			"sku":             p.SKU,
			"stock_quantity":  p.StockQuantity,
			"min_stock_level": p.MinStockLevel,
		},
	}
}
