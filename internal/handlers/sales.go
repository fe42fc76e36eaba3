package handlers

import (
	"context"
	"encoding/csv"
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
	"stockpos/internal/middleware"
	"stockpos/internal/models"
	"stockpos/internal/notify"
)

var saleStatuses = []string{
	models.SaleStatusPending,
	models.SaleStatusCompleted,
	models.SaleStatusCancelled,
	models.SaleStatusRefunded,
}

type SaleStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending completed cancelled refunded"`
}

func isSaleStatus(s string) bool {
	for _, v := range saleStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func saleListFilter(c *gin.Context, loc *time.Location) (bson.M, error) {
	filter := bson.M{}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter["$or"] = searchFilter(search, "sale_number", "customer_name", "notes", "cashier_name")
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if !isSaleStatus(status) {
			return nil, fmt.Errorf("invalid status")
		}
		filter["status"] = status
	}
	if raw := strings.TrimSpace(c.Query("customer_id")); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid customer_id")
		}
		filter["customer_id"] = id
	}
	rng, err := parseDateRange(c.Query("date_from"), c.Query("date_to"), loc)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		filter["created_at"] = rng
	}
	return filter, nil
}

func ListSales(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		filter, err := saleListFilter(c, loc)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coll := db.Collection("sales")
		total, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := coll.Find(ctx, filter, options.Find().
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

type statusBucket struct {
	Status  string  `bson:"_id"`
	Count   int64   `bson:"count"`
	Revenue float64 `bson:"revenue"`
	Profit  float64 `bson:"profit"`
}

// summarizeStatuses folds per-status aggregates into the stats response.
// Revenue and profit only count completed sales.
func summarizeStatuses(buckets []statusBucket) gin.H {
	counts := gin.H{}
	for _, s := range saleStatuses {
		counts[s] = int64(0)
	}

	var total int64
	var revenue, profit float64
	var completed int64
	for _, b := range buckets {
		counts[b.Status] = b.Count
		total += b.Count
		if b.Status == models.SaleStatusCompleted {
			completed = b.Count
			revenue = b.Revenue
			profit = b.Profit
		}
	}

	average := 0.0
	if completed > 0 {
		average = round2(revenue / float64(completed))
	}

	return gin.H{
		"total_sales":        total,
		"by_status":          counts,
		"total_revenue":      round2(revenue),
		"total_profit":       round2(profit),
		"average_sale_value": average,
	}
}

func SalesStats(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales/stats"
		defer handlePanic(c, route)

		match := bson.M{}
		rng, err := parseDateRange(c.Query("date_from"), c.Query("date_to"), loc)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if rng != nil {
			match["created_at"] = rng
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("sales").Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: match}},
			{{Key: "$group", Value: bson.M{
				"_id":     "$status",
				"count":   bson.M{"$sum": 1},
				"revenue": bson.M{"$sum": "$total_amount"},
				"profit":  bson.M{"$sum": "$total_profit"},
			}}},
		})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		var buckets []statusBucket
		if err := cursor.All(ctx, &buckets); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, summarizeStatuses(buckets))
	}
}

func GetSale(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var sale models.Sale
		err := db.Collection("sales").FindOne(ctx, bson.M{"_id": id}).Decode(&sale)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "sale not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, sale)
	}
}

var errSaleNotFound = errors.New("sale not found")

func restoreSaleStock(ctx context.Context, db *mongo.Database, items []models.SaleItem, now time.Time) error {
	for _, item := range items {
		_, err := db.Collection("products").UpdateOne(ctx, bson.M{"_id": item.ProductID}, bson.M{
			"$inc": bson.M{"stock_quantity": item.Quantity},
			"$set": bson.M{"updated_at": now},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func UpdateSaleStatus(db *mongo.Database, pub notify.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/sales/:id/status"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req SaleStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*requestTimeout)
		defer cancel()

		session, err := db.Client().StartSession()
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer session.EndSession(ctx)

		var sale models.Sale
		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			if err := db.Collection("sales").FindOne(sessCtx, bson.M{"_id": id}).Decode(&sale); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return nil, errSaleNotFound
				}
				return nil, err
			}

			from := sale.Status
			if !models.CanTransitionSale(from, req.Status) {
				return nil, invalidTransitionError{From: from, To: req.Status}
			}

			now := time.Now().UTC()
			if restoresStock(from, req.Status) {
				if err := restoreSaleStock(sessCtx, db, sale.Items, now); err != nil {
					return nil, err
				}
			}
			if sale.CustomerID != nil {
				if err := applyCustomerDelta(sessCtx, db, *sale.CustomerID, from, req.Status, sale.TotalAmount, now); err != nil {
					return nil, err
				}
			}

			if _, err := db.Collection("sales").UpdateByID(sessCtx, id, bson.M{"$set": bson.M{
				"status":     req.Status,
				"updated_at": now,
			}}); err != nil {
				return nil, err
			}
			sale.Status = req.Status
			sale.UpdatedAt = now
			return nil, nil
		})
		if errors.Is(err, errSaleNotFound) {
			respondWithError(c, http.StatusNotFound, route, errSaleNotFound.Error())
			return
		}
		if err != nil {
			respondSaleError(c, route, err)
			return
		}

		user, _ := currentUserName(c)
		logger.Named("sales").Info("sale status changed",
			zap.String("sale_number", sale.SaleNumber),
			zap.String("status", sale.Status),
			zap.String("user", user))

		publish(pub, notify.Event{
			Type:    notify.EventSaleUpdated,
			Message: fmt.Sprintf("Sale %s is now %s", sale.SaleNumber, sale.Status),
			Data:    gin.H{"sale_id": sale.ID.Hex(), "sale_number": sale.SaleNumber, "status": sale.Status},
		})

		c.JSON(http.StatusOK, sale)
	}
}

func DeleteSale(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/sales/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "not authenticated")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*requestTimeout)
		defer cancel()

		session, err := db.Client().StartSession()
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer session.EndSession(ctx)

		errForbidden := errors.New("not enough permissions")
		var sale models.Sale
		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			if err := db.Collection("sales").FindOne(sessCtx, bson.M{"_id": id}).Decode(&sale); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return nil, errSaleNotFound
				}
				return nil, err
			}
			if user.Role != models.RoleAdmin && sale.CashierID != user.ID {
				return nil, errForbidden
			}

			now := time.Now().UTC()
			if models.HoldsStock(sale.Status) {
				if err := restoreSaleStock(sessCtx, db, sale.Items, now); err != nil {
					return nil, err
				}
			}
			if sale.CustomerID != nil {
				if err := applyCustomerDelta(sessCtx, db, *sale.CustomerID, sale.Status, "", sale.TotalAmount, now); err != nil {
					return nil, err
				}
			}

			if _, err := db.Collection("sales").DeleteOne(sessCtx, bson.M{"_id": id}); err != nil {
				return nil, err
			}
			return nil, nil
		})
		switch {
		case errors.Is(err, errSaleNotFound):
			respondWithError(c, http.StatusNotFound, route, errSaleNotFound.Error())
			return
		case errors.Is(err, errForbidden):
			respondWithError(c, http.StatusForbidden, route, errForbidden.Error())
			return
		case err != nil:
			respondDBError(c, route, err)
			return
		}

		logger.Named("sales").Info("sale deleted", zap.String("sale_number", sale.SaleNumber), zap.String("user", user.Username))
		c.JSON(http.StatusOK, gin.H{"message": "sale deleted"})
	}
}

var saleCSVHeader = []string{
	"Sale Number", "Customer Name", "Items Details", "Subtotal", "Discount",
	"Tax", "Total", "Profit", "Status", "Payment Method", "Payment Received",
	"Change Given", "Created At", "Processed By",
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func saleCSVRow(s models.Sale, loc *time.Location) []string {
	details := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		details = append(details, fmt.Sprintf("%s x%d @ %s", item.ProductName, item.Quantity, money(item.UnitPrice)))
	}
	customer := s.CustomerName
	if customer == "" {
		customer = walkInCustomer
	}
	if loc == nil {
		loc = time.UTC
	}

	return []string{
		s.SaleNumber,
		customer,
		strings.Join(details, "; "),
		money(s.Subtotal),
		money(s.DiscountAmount),
		money(s.TaxAmount),
		money(s.TotalAmount),
		money(s.TotalProfit),
		s.Status,
		s.PaymentMethod,
		money(s.PaymentReceived),
		money(s.ChangeGiven),
		s.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
		s.CashierName,
	}
}

func ExportSales(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales/export"
		defer handlePanic(c, route)

		filter := bson.M{}
		rng, err := parseDateRange(c.Query("date_from"), c.Query("date_to"), loc)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if rng != nil {
			filter["created_at"] = rng
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 6*requestTimeout)
		defer cancel()

		cursor, err := db.Collection("sales").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		filename := fmt.Sprintf("sales_export_%s.csv", time.Now().In(loc).Format("20060102_150405"))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		_ = w.Write(saleCSVHeader)

		rows := 0
		for cursor.Next(ctx) {
			var sale models.Sale
			if err := cursor.Decode(&sale); err != nil {
				logger.Named("sales").Error("export decode failed", zap.Error(err))
				break
			}
			if err := w.Write(saleCSVRow(sale, loc)); err != nil {
				logger.Named("sales").Warn("export write failed", zap.Error(err))
				break
			}
			rows++
		}
		w.Flush()
		if err := cursor.Err(); err != nil {
			logger.Named("sales").Error("export cursor failed", zap.Error(err))
		}

		logger.Named("sales").Info("sales exported", zap.Int("rows", rows))
	}
}
