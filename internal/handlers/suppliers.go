package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockpos/internal/models"
)

type SupplierRequest struct {
	CompanyName   string `json:"company_name" binding:"required,min=1,max=200"`
	ContactPerson string `json:"contact_person" binding:"max=100"`
	Email         string `json:"email" binding:"omitempty,email"`
	Phone         string `json:"phone" binding:"max=20"`
	Address       string `json:"address" binding:"max=300"`
	Notes         string `json:"notes" binding:"max=500"`
	IsActive      *bool  `json:"is_active"`
}

type SupplierUpdateRequest struct {
	CompanyName   *string `json:"company_name" binding:"omitempty,min=1,max=200"`
	ContactPerson *string `json:"contact_person" binding:"omitempty,max=100"`
	Email         *string `json:"email" binding:"omitempty,max=254"`
	Phone         *string `json:"phone" binding:"omitempty,max=20"`
	Address       *string `json:"address" binding:"omitempty,max=300"`
	Notes         *string `json:"notes" binding:"omitempty,max=500"`
	IsActive      *bool   `json:"is_active"`
}

func ListSuppliers(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/suppliers"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "company_name", "contact_person", "email", "phone")
		}
		isActive, err := parseBoolQuery(c.Query("is_active"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if isActive != nil {
			filter["is_active"] = *isActive
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("suppliers")
		total, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := coll.Find(ctx, filter, options.Find().
			SetSkip((page-1)*size).
			SetLimit(size).
			SetSort(bson.D{{Key: "company_name", Value: 1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		suppliers := make([]models.Supplier, 0)
		if err := cursor.All(ctx, &suppliers); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, paginatedResponse(suppliers, page, size, total))
	}
}

type supplierOption struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	CompanyName string             `bson:"company_name" json:"company_name"`
}

// SupplierDropdown lists active suppliers by name for select inputs.
func SupplierDropdown(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/suppliers/dropdown"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("suppliers").Find(ctx, bson.M{"is_active": true}, options.Find().
			SetProjection(bson.M{"company_name": 1}).
			SetSort(bson.D{{Key: "company_name", Value: 1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		suppliers := make([]supplierOption, 0)
		if err := cursor.All(ctx, &suppliers); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"suppliers": suppliers, "total": len(suppliers)})
	}
}

func CreateSupplier(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/suppliers"
		defer handlePanic(c, route)

		var req SupplierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		name := strings.TrimSpace(req.CompanyName)

		ctx, cancel := requestContext(c)
		defer cancel()

		count, err := db.Collection("suppliers").CountDocuments(ctx, bson.M{"company_name": name})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusConflict, route, "supplier already exists")
			return
		}

		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		now := time.Now().UTC()
		supplier := models.Supplier{
			CompanyName:   name,
			ContactPerson: strings.TrimSpace(req.ContactPerson),
			Email:         strings.ToLower(strings.TrimSpace(req.Email)),
			Phone:         strings.TrimSpace(req.Phone),
			Address:       strings.TrimSpace(req.Address),
			Notes:         strings.TrimSpace(req.Notes),
			IsActive:      isActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		result, err := db.Collection("suppliers").InsertOne(ctx, supplier)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "supplier already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		supplier.ID, _ = result.InsertedID.(primitive.ObjectID)

		c.JSON(http.StatusCreated, supplier)
	}
}

func GetSupplier(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/suppliers/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var supplier models.Supplier
		err := db.Collection("suppliers").FindOne(ctx, bson.M{"_id": id}).Decode(&supplier)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "supplier not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, supplier)
	}
}

func UpdateSupplier(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/suppliers/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req SupplierUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		set := bson.M{}
		if req.CompanyName != nil {
			name := strings.TrimSpace(*req.CompanyName)
			count, err := db.Collection("suppliers").CountDocuments(ctx, bson.M{"company_name": name, "_id": bson.M{"$ne": id}})
			if err != nil {
				respondDBError(c, route, err)
				return
			}
			if count > 0 {
				respondWithError(c, http.StatusConflict, route, "supplier already exists")
				return
			}
			set["company_name"] = name
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != "" && !strings.Contains(email, "@") {
				respondWithError(c, http.StatusBadRequest, route, "email must be a valid email")
				return
			}
			set["email"] = email
		}
		if req.ContactPerson != nil {
			set["contact_person"] = strings.TrimSpace(*req.ContactPerson)
		}
		if req.Phone != nil {
			set["phone"] = strings.TrimSpace(*req.Phone)
		}
		if req.Address != nil {
			set["address"] = strings.TrimSpace(*req.Address)
		}
		if req.Notes != nil {
			set["notes"] = strings.TrimSpace(*req.Notes)
		}
		if req.IsActive != nil {
			set["is_active"] = *req.IsActive
		}

		if len(set) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}

		updated, status, err := setSupplierFields(c, db, id, set)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		switch status {
		case http.StatusNotFound:
			respondWithError(c, status, route, "supplier not found")
			return
		case http.StatusConflict:
			respondWithError(c, status, route, "supplier already exists")
			return
		}

		if name, ok := set["company_name"].(string); ok {
			ctx, cancel := requestContext(c)
			defer cancel()
			_, _ = db.Collection("products").UpdateMany(ctx, bson.M{"supplier_id": id}, bson.M{"$set": bson.M{"supplier": name}})
		}

		c.JSON(http.StatusOK, updated)
	}
}

// setSupplierFields applies set to a supplier and returns it. The status is
// 404 when the supplier does not exist and 409 on a company name clash.
func setSupplierFields(c *gin.Context, db *mongo.Database, id primitive.ObjectID, set bson.M) (*models.Supplier, int, error) {
	ctx, cancel := requestContext(c)
	defer cancel()

	set["updated_at"] = time.Now().UTC()

	var updated models.Supplier
	err := db.Collection("suppliers").FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, http.StatusNotFound, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, http.StatusConflict, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return &updated, http.StatusOK, nil
}

func setSupplierActive(active bool, route string, db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		updated, status, err := setSupplierFields(c, db, id, bson.M{"is_active": active})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if status == http.StatusNotFound {
			respondWithError(c, status, route, "supplier not found")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func ActivateSupplier(db *mongo.Database) gin.HandlerFunc {
	return setSupplierActive(true, "PATCH /api/suppliers/:id/activate", db)
}

func DeactivateSupplier(db *mongo.Database) gin.HandlerFunc {
	return setSupplierActive(false, "PATCH /api/suppliers/:id/deactivate", db)
}

func DeleteSupplier(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/suppliers/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		filter := activeProductFilter()
		filter["supplier_id"] = id
		count, err := db.Collection("products").CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusConflict, route, "supplier has products")
			return
		}

		result, err := db.Collection("suppliers").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "supplier not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
