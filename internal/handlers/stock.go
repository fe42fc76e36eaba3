package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"stockpos/internal/logger"
	"stockpos/internal/middleware"
	"stockpos/internal/models"
	"stockpos/internal/notify"
)

type RestockItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	CostPrice float64 `json:"cost_price" binding:"gte=0"`
}

type RestockRequest struct {
	Description   string               `json:"description" binding:"required,min=1,max=200"`
	Category      string               `json:"category" binding:"required,min=1,max=50"`
	Amount        float64              `json:"amount" binding:"required,gt=0"`
	ExpenseDate   string               `json:"expense_date" binding:"required"`
	PaymentMethod string               `json:"payment_method" binding:"required,oneof=cash card mobile_money digital_wallet bank_transfer not_paid"`
	Vendor        string               `json:"vendor" binding:"max=100"`
	Notes         string               `json:"notes" binding:"max=500"`
	Products      []RestockItemRequest `json:"products" binding:"required,min=1,dive"`
}

type restockLine struct {
	ProductID primitive.ObjectID
	Quantity  int
	CostPrice float64
}

func parseRestockLines(items []RestockItemRequest) ([]restockLine, error) {
	lines := make([]restockLine, 0, len(items))
	for _, item := range items {
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("invalid product_id: %s", item.ProductID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be greater than zero")
		}
		if item.CostPrice < 0 {
			return nil, fmt.Errorf("cost_price must not be negative")
		}
		lines = append(lines, restockLine{ProductID: id, Quantity: item.Quantity, CostPrice: item.CostPrice})
	}
	return lines, nil
}

// expenseStatus maps a payment method to the stored status and paid flag.
func expenseStatus(method string) (string, bool) {
	if models.ExpensePaidBy(method) {
		return models.ExpenseStatusPaid, true
	}
	return models.ExpenseStatusNotPaid, false
}

func Restock(db *mongo.Database, pub notify.Publisher, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/stock/restock"
		defer handlePanic(c, route)

		var req RestockRequest
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
		lines, err := parseRestockLines(req.Products)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		category, err := resolveExpenseCategory(ctx, db, req.Category)
		if respondCategoryLookup(c, route, err) {
			return
		}

		session, err := db.Client().StartSession()
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer session.EndSession(ctx)

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

		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			expense.Products = make([]models.ExpenseProduct, 0, len(lines))
			for _, line := range lines {
				filter := activeProductFilter()
				filter["_id"] = line.ProductID

				var product models.Product
				err := db.Collection("products").FindOne(sessCtx, filter).Decode(&product)
				if errors.Is(err, mongo.ErrNoDocuments) {
					return nil, productNotFoundError{ProductID: line.ProductID}
				}
				if err != nil {
					return nil, err
				}

				if _, err := db.Collection("products").UpdateOne(sessCtx, filter, bson.M{
					"$inc": bson.M{"stock_quantity": line.Quantity},
					"$set": bson.M{"cost_price": line.CostPrice, "updated_at": now},
				}); err != nil {
					return nil, err
				}

				expense.Products = append(expense.Products, models.ExpenseProduct{
					ProductID: product.ID,
					Name:      product.Name,
					Quantity:  line.Quantity,
					CostPrice: line.CostPrice,
				})
			}

			res, err := db.Collection("expenses").InsertOne(sessCtx, expense)
			if err != nil {
				return nil, err
			}
			expense.ID, _ = res.InsertedID.(primitive.ObjectID)
			return nil, nil
		})
		if err != nil {
			var notFound productNotFoundError
			if errors.As(err, &notFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":      notFound.Error(),
					"product_id": notFound.ProductID.Hex(),
				})
				return
			}
			respondDBError(c, route, err)
			return
		}

		logger.Named("stock").Info("restock recorded",
			zap.String("expense_id", expense.ID.Hex()),
			zap.Int("products", len(expense.Products)),
			zap.Float64("amount", expense.Amount),
			zap.String("user", user.Username))

		publish(pub, notify.Event{
			Type:    notify.EventStockRestored,
			Message: fmt.Sprintf("%d product(s) restocked by %s", len(expense.Products), cashierName(user)),
			Data:    gin.H{"expense_id": expense.ID.Hex(), "products": expense.Products},
		})

		c.JSON(http.StatusCreated, expense)
	}
}
