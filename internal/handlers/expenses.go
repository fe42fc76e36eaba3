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

	"stockpos/internal/middleware"
	"stockpos/internal/models"
)

type ExpenseRequest struct {
	Description   string  `json:"description" binding:"required,min=1,max=200"`
	Category      string  `json:"category" binding:"required,min=1,max=50"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	ExpenseDate   string  `json:"expense_date" binding:"required"`
	PaymentMethod string  `json:"payment_method" binding:"required,oneof=cash card mobile_money digital_wallet bank_transfer not_paid"`
	Vendor        string  `json:"vendor" binding:"max=100"`
	Notes         string  `json:"notes" binding:"max=500"`
}

type ExpenseUpdateRequest struct {
	Description   *string  `json:"description" binding:"omitempty,min=1,max=200"`
	Category      *string  `json:"category" binding:"omitempty,min=1,max=50"`
	Amount        *float64 `json:"amount" binding:"omitempty,gt=0"`
	ExpenseDate   *string  `json:"expense_date"`
	PaymentMethod *string  `json:"payment_method" binding:"omitempty,oneof=cash card mobile_money digital_wallet bank_transfer not_paid"`
	Vendor        *string  `json:"vendor" binding:"omitempty,max=100"`
	Notes         *string  `json:"notes" binding:"omitempty,max=500"`
	Status        *string  `json:"status" binding:"omitempty,oneof=paid not_paid"`
}

func expenseListFilter(c *gin.Context, loc *time.Location) (bson.M, error) {
	filter := bson.M{}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter["$or"] = searchFilter(search, "description", "vendor", "notes")
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		filter["category"] = category
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if status != models.ExpenseStatusPaid && status != models.ExpenseStatusNotPaid {
			return nil, errors.New("invalid status")
		}
		filter["status"] = status
	}
	rng, err := parseDateRange(c.Query("date_from"), c.Query("date_to"), loc)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		filter["expense_date"] = rng
	}
	return filter, nil
}

func ListExpenses(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/expenses"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		filter, err := expenseListFilter(c, loc)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("expenses")
		total, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		sumCursor, err := coll.Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: filter}},
			{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
		})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		var sums []struct {
			Total float64 `bson:"total"`
		}
		if err := sumCursor.All(ctx, &sums); err != nil {
			respondDBError(c, route, err)
			return
		}
		totalAmount := 0.0
		if len(sums) > 0 {
			totalAmount = round2(sums[0].Total)
		}

		cursor, err := coll.Find(ctx, filter, options.Find().
			SetSkip((page-1)*size).
			SetLimit(size).
			SetSort(bson.D{{Key: "expense_date", Value: -1}, {Key: "created_at", Value: -1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		expenses := make([]models.Expense, 0)
		if err := cursor.All(ctx, &expenses); err != nil {
			respondDBError(c, route, err)
			return
		}

		resp := paginatedResponse(expenses, page, size, total)
		resp["total_amount"] = totalAmount
		c.JSON(http.StatusOK, resp)
	}
}

func CreateExpense(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/expenses"
		defer handlePanic(c, route)

		var req ExpenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "not authenticated")
			return
		}

		expenseDate, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.ExpenseDate), loc)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid expense_date, expected YYYY-MM-DD")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		category, err := resolveExpenseCategory(ctx, db, req.Category)
		if respondCategoryLookup(c, route, err) {
			return
		}

		status, paid := expenseStatus(req.PaymentMethod)
		now := time.Now().UTC()
		expense := models.Expense{
			Description:   strings.TrimSpace(req.Description),
			Category:      category,
			Amount:        round2(req.Amount),
			ExpenseDate:   expenseDate.UTC(),
			PaymentMethod: req.PaymentMethod,
			Vendor:        strings.TrimSpace(req.Vendor),
			Notes:         strings.TrimSpace(req.Notes),
			Status:        status,
			IsPaid:        paid,
			CreatedBy:     user.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		result, err := db.Collection("expenses").InsertOne(ctx, expense)
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		expense.ID, _ = result.InsertedID.(primitive.ObjectID)

		c.JSON(http.StatusCreated, expense)
	}
}

func GetExpense(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/expenses/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var expense models.Expense
		err := db.Collection("expenses").FindOne(ctx, bson.M{"_id": id}).Decode(&expense)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "expense not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, expense)
	}
}

func UpdateExpense(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/expenses/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req ExpenseUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		set := bson.M{}
		if req.Description != nil {
			set["description"] = strings.TrimSpace(*req.Description)
		}
		if req.Category != nil {
			category, err := resolveExpenseCategory(ctx, db, *req.Category)
			if respondCategoryLookup(c, route, err) {
				return
			}
			set["category"] = category
		}
		if req.Amount != nil {
			set["amount"] = round2(*req.Amount)
		}
		if req.ExpenseDate != nil {
			d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(*req.ExpenseDate), loc)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid expense_date, expected YYYY-MM-DD")
				return
			}
			set["expense_date"] = d.UTC()
		}
		if req.PaymentMethod != nil {
			status, paid := expenseStatus(*req.PaymentMethod)
			set["payment_method"] = *req.PaymentMethod
			set["status"] = status
			set["is_paid"] = paid
		}
		if req.Status != nil {
			set["status"] = *req.Status
			set["is_paid"] = *req.Status == models.ExpenseStatusPaid
		}
		if req.Vendor != nil {
			set["vendor"] = strings.TrimSpace(*req.Vendor)
		}
		if req.Notes != nil {
			set["notes"] = strings.TrimSpace(*req.Notes)
		}

		if len(set) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		set["updated_at"] = time.Now().UTC()

		var updated models.Expense
		err := db.Collection("expenses").FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "expense not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func DeleteExpense(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/expenses/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		result, err := db.Collection("expenses").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "expense not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
