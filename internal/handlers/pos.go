package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"stockpos/internal/database"
	"stockpos/internal/logger"
	"stockpos/internal/middleware"
	"stockpos/internal/models"
	"stockpos/internal/notify"
)

type SaleItemRequest struct {
	ProductID      string  `json:"product_id" binding:"required"`
	Quantity       int     `json:"quantity" binding:"required,gt=0"`
	DiscountAmount float64 `json:"discount_amount" binding:"gte=0"`
}

type CreateSaleRequest struct {
	CustomerID      string            `json:"customer_id"`
	CustomerName    string            `json:"customer_name" binding:"max=100"`
	Items           []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
	TaxRate         *float64          `json:"tax_rate" binding:"omitempty,gte=0,lte=1"`
	DiscountAmount  float64           `json:"discount_amount" binding:"gte=0"`
	PaymentMethod   string            `json:"payment_method" binding:"required,oneof=cash card mobile_money digital_wallet bank_transfer not_paid"`
	PaymentReceived float64           `json:"payment_received" binding:"gte=0"`
	Notes           string            `json:"notes" binding:"max=500"`
}

type outOfStockError struct {
	ProductID   primitive.ObjectID
	ProductName string
	Available   int
	Requested   int
}

func (e outOfStockError) Error() string {
	return "insufficient stock"
}

type productNotFoundError struct {
	ProductID primitive.ObjectID
}

func (e productNotFoundError) Error() string {
	return "product not found"
}

type customerNotFoundError struct {
	CustomerID primitive.ObjectID
}

func (e customerNotFoundError) Error() string {
	return "customer not found"
}

type invalidTransitionError struct {
	From, To string
}

func (e invalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change sale status from %s to %s", e.From, e.To)
}

type paymentError struct {
	msg string
}

func (e paymentError) Error() string {
	return e.msg
}

// respondSaleError maps sale flow errors onto responses.
func respondSaleError(c *gin.Context, route string, err error) {
	var stockErr outOfStockError
	if errors.As(err, &stockErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":        stockErr.Error(),
			"product_id":   stockErr.ProductID.Hex(),
			"product_name": stockErr.ProductName,
			"available":    stockErr.Available,
			"requested":    stockErr.Requested,
		})
		return
	}
	var notFoundErr productNotFoundError
	if errors.As(err, &notFoundErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":      notFoundErr.Error(),
			"product_id": notFoundErr.ProductID.Hex(),
		})
		return
	}
	var customerErr customerNotFoundError
	if errors.As(err, &customerErr) {
		respondWithError(c, http.StatusBadRequest, route, customerErr.Error())
		return
	}
	var transitionErr invalidTransitionError
	if errors.As(err, &transitionErr) {
		respondWithError(c, http.StatusBadRequest, route, transitionErr.Error())
		return
	}
	var payErr paymentError
	if errors.As(err, &payErr) {
		respondWithError(c, http.StatusBadRequest, route, payErr.Error())
		return
	}
	var validationErr pricingError
	if errors.As(err, &validationErr) {
		respondWithError(c, http.StatusBadRequest, route, validationErr.Error())
		return
	}
	respondDBError(c, route, err)
}

type pricingError struct {
	err error
}

func (e pricingError) Error() string { return e.err.Error() }
func (e pricingError) Unwrap() error { return e.err }

type saleOrder struct {
	Lines           []saleLine
	CustomerID      *primitive.ObjectID
	CustomerName    string
	Cashier         *models.User
	TaxRate         float64
	Discount        float64
	PaymentMethod   string
	PaymentReceived float64
	Notes           string
}

// placeSale runs one attempt of the sale flow inside a transaction and
// returns the stored sale plus products that fell to their reorder level.
func placeSale(ctx context.Context, db *mongo.Database, order saleOrder) (*models.Sale, []models.Product, error) {
	seq, err := database.NextSequence(ctx, db, database.SaleSequence)
	if err != nil {
		return nil, nil, err
	}

	session, err := db.Client().StartSession()
	if err != nil {
		return nil, nil, err
	}
	defer session.EndSession(ctx)

	var sale models.Sale
	var lowStock []models.Product

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		lowStock = lowStock[:0]
		customerName := strings.TrimSpace(order.CustomerName)

		if order.CustomerID != nil {
			var customer models.Customer
			err := db.Collection("customers").FindOne(sessCtx, bson.M{"_id": *order.CustomerID, "is_active": true}).Decode(&customer)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, customerNotFoundError{CustomerID: *order.CustomerID}
			}
			if err != nil {
				return nil, err
			}
			customerName = customer.Name
		}
		if customerName == "" {
			customerName = walkInCustomer
		}

		items := make([]models.SaleItem, 0, len(order.Lines))
		for _, line := range order.Lines {
			filter := activeProductFilter()
			filter["_id"] = line.ProductID
			filter["is_active"] = true

			var product models.Product
			err := db.Collection("products").FindOne(sessCtx, filter).Decode(&product)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, productNotFoundError{ProductID: line.ProductID}
			}
			if err != nil {
				return nil, err
			}

			if product.StockQuantity < line.Quantity {
				return nil, outOfStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.StockQuantity,
					Requested:   line.Quantity,
				}
			}

			item, err := priceLine(product, line)
			if err != nil {
				return nil, pricingError{err: err}
			}
			items = append(items, item)

			filter["stock_quantity"] = bson.M{"$gte": line.Quantity}
			res, err := db.Collection("products").UpdateOne(sessCtx, filter, bson.M{
				"$inc": bson.M{"stock_quantity": -line.Quantity},
				"$set": bson.M{"updated_at": time.Now().UTC()},
			})
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, outOfStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.StockQuantity,
					Requested:   line.Quantity,
				}
			}

			product.StockQuantity -= line.Quantity
			product.Derive()
			if product.IsLowStock {
				lowStock = append(lowStock, product)
			}
		}

		totals, err := computeTotals(items, order.Discount, order.TaxRate)
		if err != nil {
			return nil, pricingError{err: err}
		}
		status, change, err := settlePayment(order.PaymentMethod, order.PaymentReceived, totals.Total)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		sale = models.Sale{
			SaleNumber:      database.FormatSaleNumber(seq),
			CustomerID:      order.CustomerID,
			CustomerName:    customerName,
			CashierID:       order.Cashier.ID,
			CashierName:     cashierName(order.Cashier),
			Items:           items,
			Subtotal:        totals.Subtotal,
			TaxRate:         totals.TaxRate,
			TaxAmount:       totals.TaxAmount,
			DiscountAmount:  totals.Discount,
			TotalAmount:     totals.Total,
			TotalProfit:     totals.TotalProfit,
			PaymentMethod:   order.PaymentMethod,
			PaymentReceived: round2(order.PaymentReceived),
			ChangeGiven:     change,
			Status:          status,
			Notes:           strings.TrimSpace(order.Notes),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		res, err := db.Collection("sales").InsertOne(sessCtx, sale)
		if err != nil {
			return nil, err
		}
		sale.ID, _ = res.InsertedID.(primitive.ObjectID)

		if order.CustomerID != nil {
			if err := applyCustomerDelta(sessCtx, db, *order.CustomerID, "", status, sale.TotalAmount, now); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &sale, lowStock, nil
}

func applyCustomerDelta(ctx context.Context, db *mongo.Database, customerID primitive.ObjectID, from, to string, total float64, now time.Time) error {
	orders, amount := customerDelta(from, to, total)
	if orders == 0 {
		return nil
	}
	update := bson.M{
		"$inc": bson.M{"total_orders": orders, "total_purchases": amount},
		"$set": bson.M{"updated_at": now},
	}
	if orders > 0 {
		update["$set"] = bson.M{"updated_at": now, "last_purchase_date": now}
	}
	_, err := db.Collection("customers").UpdateOne(ctx, bson.M{"_id": customerID}, update)
	return err
}

func cashierName(u *models.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Username
}

func CreateSale(db *mongo.Database, pub notify.Publisher, defaultTaxRate float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/pos/sales"
		defer handlePanic(c, route)

		var req CreateSaleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		cashier, ok := middleware.CurrentUser(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "not authenticated")
			return
		}

		lines, err := mergeLines(req.Items)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		customerID, err := parseOptionalObjectID(req.CustomerID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid customer_id")
			return
		}

		taxRate := defaultTaxRate
		if req.TaxRate != nil {
			taxRate = *req.TaxRate
		}

		order := saleOrder{
			Lines:           lines,
			CustomerID:      customerID,
			CustomerName:    req.CustomerName,
			Cashier:         cashier,
			TaxRate:         taxRate,
			Discount:        req.DiscountAmount,
			PaymentMethod:   req.PaymentMethod,
			PaymentReceived: req.PaymentReceived,
			Notes:           req.Notes,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*requestTimeout)
		defer cancel()

		var sale *models.Sale
		var lowStock []models.Product
		err = retry.Do(
			func() error {
				var err error
				sale, lowStock, err = placeSale(ctx, db, order)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(50*time.Millisecond),
			retry.LastErrorOnly(true),
			retry.RetryIf(mongo.IsDuplicateKeyError),
			retry.OnRetry(func(n uint, err error) {
				logger.Named("pos").Warn("sale number collision, retrying", zap.Uint("attempt", n+1), zap.Error(err))
			}),
		)
		if err != nil {
			respondSaleError(c, route, err)
			return
		}

		logger.Named("pos").Info("sale created",
			zap.String("sale_number", sale.SaleNumber),
			zap.Float64("total", sale.TotalAmount),
			zap.String("status", sale.Status),
			zap.String("cashier", cashier.Username))

		publish(pub, notify.Event{
			Type:    notify.EventSaleCreated,
			Message: fmt.Sprintf("Sale %s recorded by %s", sale.SaleNumber, sale.CashierName),
			Data: gin.H{
				"sale_id":      sale.ID.Hex(),
				"sale_number":  sale.SaleNumber,
				"total_amount": sale.TotalAmount,
				"status":       sale.Status,
			},
		})
		for _, p := range lowStock {
			publish(pub, lowStockEvent(p))
		}

		c.JSON(http.StatusCreated, sale)
	}
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

func SearchPOSProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/pos/products/search"
		defer handlePanic(c, route)

		query := strings.TrimSpace(c.Query("query"))
		if query == "" {
			query = strings.TrimSpace(c.Query("q"))
		}

		limit := defaultSearchLimit
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 || v > maxSearchLimit {
				respondWithError(c, http.StatusBadRequest, route, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit))
				return
			}
			limit = v
		}

		if query == "" {
			c.JSON(http.StatusOK, gin.H{"data": []models.Product{}})
			return
		}

		filter := activeProductFilter()
		filter["is_active"] = true
		filter["stock_quantity"] = bson.M{"$gt": 0}
		filter["$or"] = searchFilter(query, "name", "sku", "barcode")

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("products").Find(ctx, filter, options.Find().
			SetLimit(int64(limit)).
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

		c.JSON(http.StatusOK, gin.H{"data": products})
	}
}
