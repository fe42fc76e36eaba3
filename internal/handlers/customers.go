package handlers

import (
	"context"
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

type CustomerRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=100"`
	Email       string  `json:"email" binding:"omitempty,email"`
	Phone       string  `json:"phone" binding:"max=20"`
	Address     string  `json:"address" binding:"max=200"`
	City        string  `json:"city" binding:"max=50"`
	PostalCode  string  `json:"postal_code" binding:"max=20"`
	Country     string  `json:"country" binding:"max=50"`
	DateOfBirth *string `json:"date_of_birth"`
	Notes       string  `json:"notes" binding:"max=500"`
	IsActive    *bool   `json:"is_active"`
}

type CustomerUpdateRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Email       *string `json:"email" binding:"omitempty,max=254"`
	Phone       *string `json:"phone" binding:"omitempty,max=20"`
	Address     *string `json:"address" binding:"omitempty,max=200"`
	City        *string `json:"city" binding:"omitempty,max=50"`
	PostalCode  *string `json:"postal_code" binding:"omitempty,max=20"`
	Country     *string `json:"country" binding:"omitempty,max=50"`
	DateOfBirth *string `json:"date_of_birth"`
	Notes       *string `json:"notes" binding:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active"`
}

func parseBirthDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, errors.New("invalid date_of_birth, expected YYYY-MM-DD")
	}
	return &t, nil
}

func customerEmailTaken(ctx context.Context, db *mongo.Database, email string, exclude *primitive.ObjectID) (bool, error) {
	if email == "" {
		return false, nil
	}
	filter := bson.M{"email": email}
	if exclude != nil {
		filter["_id"] = bson.M{"$ne": *exclude}
	}
	count, err := db.Collection("customers").CountDocuments(ctx, filter)
	return count > 0, err
}

func ListCustomers(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/customers"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "name", "email", "phone")
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

		coll := db.Collection("customers")
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

		customers := make([]models.Customer, 0)
		if err := cursor.All(ctx, &customers); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, paginatedResponse(customers, page, size, total))
	}
}

func CreateCustomer(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/customers"
		defer handlePanic(c, route)

		var req CustomerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		dob, err := parseBirthDate(req.DateOfBirth)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		ctx, cancel := requestContext(c)
		defer cancel()

		taken, err := customerEmailTaken(ctx, db, email, nil)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if taken {
			respondWithError(c, http.StatusConflict, route, "customer email already exists")
			return
		}

		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		now := time.Now().UTC()
		customer := models.Customer{
			Name:        strings.TrimSpace(req.Name),
			Email:       email,
			Phone:       strings.TrimSpace(req.Phone),
			Address:     strings.TrimSpace(req.Address),
			City:        strings.TrimSpace(req.City),
			PostalCode:  strings.TrimSpace(req.PostalCode),
			Country:     strings.TrimSpace(req.Country),
			DateOfBirth: dob,
			Notes:       strings.TrimSpace(req.Notes),
			IsActive:    isActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		result, err := db.Collection("customers").InsertOne(ctx, customer)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "customer email already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		customer.ID, _ = result.InsertedID.(primitive.ObjectID)

		c.JSON(http.StatusCreated, customer)
	}
}

func GetCustomer(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/customers/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var customer models.Customer
		err := db.Collection("customers").FindOne(ctx, bson.M{"_id": id}).Decode(&customer)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "customer not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, customer)
	}
}

func UpdateCustomer(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/customers/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req CustomerUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		set := bson.M{}
		unset := bson.M{}

		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email == "" {
				unset["email"] = ""
			} else {
				if !strings.Contains(email, "@") {
					respondWithError(c, http.StatusBadRequest, route, "email must be a valid email")
					return
				}
				taken, err := customerEmailTaken(ctx, db, email, &id)
				if err != nil {
					respondDBError(c, route, err)
					return
				}
				if taken {
					respondWithError(c, http.StatusConflict, route, "customer email already exists")
					return
				}
				set["email"] = email
			}
		}
		if req.DateOfBirth != nil {
			dob, err := parseBirthDate(req.DateOfBirth)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, err.Error())
				return
			}
			if dob == nil {
				unset["date_of_birth"] = ""
			} else {
				set["date_of_birth"] = *dob
			}
		}

		strFields := map[string]*string{
			"name":        req.Name,
			"phone":       req.Phone,
			"address":     req.Address,
			"city":        req.City,
			"postal_code": req.PostalCode,
			"country":     req.Country,
			"notes":       req.Notes,
		}
		for field, value := range strFields {
			if value != nil {
				set[field] = strings.TrimSpace(*value)
			}
		}
		if req.IsActive != nil {
			set["is_active"] = *req.IsActive
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

		var updated models.Customer
		err := db.Collection("customers").FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "customer not found")
			return
		}
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "customer email already exists")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func DeleteCustomer(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/customers/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		result, err := db.Collection("customers").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "customer not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func CustomerSales(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/customers/:id/sales"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}
		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		count, err := db.Collection("customers").CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if count == 0 {
			respondWithError(c, http.StatusNotFound, route, "customer not found")
			return
		}

		filter := bson.M{"customer_id": id}
		total, err := db.Collection("sales").CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := db.Collection("sales").Find(ctx, filter, options.Find().
			SetSkip((page-1)*size).
			SetLimit(size).
			SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		sales := make([]models.Sale, 0)
		if err := cursor.All(ctx, &sales); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, paginatedResponse(sales, page, size, total))
	}
}
