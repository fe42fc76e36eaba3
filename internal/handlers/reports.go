package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockpos/internal/models"
)

type periodStats struct {
	Revenue   float64 `bson:"revenue" json:"revenue"`
	Profit    float64 `bson:"profit" json:"profit"`
	Cost      float64 `bson:"cost" json:"cost"`
	Discount  float64 `bson:"discount" json:"discount"`
	Tax       float64 `bson:"tax" json:"tax"`
	Orders    int64   `bson:"orders" json:"orders"`
	Customers int64   `bson:"customers" json:"customers"`
	ItemsSold int64   `bson:"items_sold" json:"items_sold"`
}

func completedBetween(from, to time.Time) bson.M {
	rng := bson.M{"$gte": from.UTC()}
	if !to.IsZero() {
		rng["$lt"] = to.UTC()
	}
	return bson.M{"status": models.SaleStatusCompleted, "created_at": rng}
}

var itemCostExpr = bson.M{"$reduce": bson.M{
	"input":        "$items",
	"initialValue": 0,
	"in": bson.M{"$add": bson.A{
		"$$value",
		bson.M{"$multiply": bson.A{"$$this.cost_price", "$$this.quantity"}},
	}},
}}

// loadPeriodStats aggregates completed sales in [from, to). A zero to is open ended.
func loadPeriodStats(ctx context.Context, db *mongo.Database, from, to time.Time) (periodStats, error) {
	cursor, err := db.Collection("sales").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: completedBetween(from, to)}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"revenue":      bson.M{"$sum": "$total_amount"},
			"profit":       bson.M{"$sum": "$total_profit"},
			"cost":         bson.M{"$sum": itemCostExpr},
			"discount":     bson.M{"$sum": "$discount_amount"},
			"tax":          bson.M{"$sum": "$tax_amount"},
			"orders":       bson.M{"$sum": 1},
			"items_sold":   bson.M{"$sum": bson.M{"$sum": "$items.quantity"}},
			"customer_ids": bson.M{"$addToSet": "$customer_id"},
		}}},
		{{Key: "$project", Value: bson.M{
			"revenue": 1, "profit": 1, "cost": 1, "discount": 1, "tax": 1, "orders": 1, "items_sold": 1,
			"customers": bson.M{"$size": bson.M{"$filter": bson.M{
				"input": "$customer_ids",
				"cond":  bson.M{"$ne": bson.A{"$$this", nil}},
			}}},
		}}},
	})
	if err != nil {
		return periodStats{}, err
	}
	var rows []periodStats
	if err := cursor.All(ctx, &rows); err != nil {
		return periodStats{}, err
	}
	if len(rows) == 0 {
		return periodStats{}, nil
	}
	return rows[0].rounded(), nil
}

func (p periodStats) rounded() periodStats {
	p.Revenue = round2(p.Revenue)
	p.Profit = round2(p.Profit)
	p.Cost = round2(p.Cost)
	p.Discount = round2(p.Discount)
	p.Tax = round2(p.Tax)
	return p
}

func ReportStats(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/reports/stats"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		now := time.Now()
		var (
			today, week, month                         periodStats
			completed, incomplete, products, customers int64
		)

		g, gctx := newAggregateGroup(ctx)
		g.Go(func() (err error) {
			today, err = loadPeriodStats(gctx, db, startOfDay(now, loc), time.Time{})
			return err
		})
		g.Go(func() (err error) {
			week, err = loadPeriodStats(gctx, db, startOfWeek(now, loc), time.Time{})
			return err
		})
		g.Go(func() (err error) {
			month, err = loadPeriodStats(gctx, db, startOfMonth(now, loc), time.Time{})
			return err
		})
		g.Go(func() (err error) {
			if completed, err = db.Collection("sales").CountDocuments(gctx, bson.M{"status": models.SaleStatusCompleted}); err != nil {
				return err
			}
			incomplete, err = db.Collection("sales").CountDocuments(gctx, bson.M{"status": models.SaleStatusPending})
			return err
		})
		g.Go(func() (err error) {
			if products, err = db.Collection("products").CountDocuments(gctx, activeProductFilter()); err != nil {
				return err
			}
			customers, err = db.Collection("customers").CountDocuments(gctx, bson.M{})
			return err
		})
		if err := g.Wait(); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"today":      today,
			"this_week":  week,
			"this_month": month,
			"totals": gin.H{
				"completed_orders":  completed,
				"incomplete_orders": incomplete,
				"products":          products,
				"customers":         customers,
			},
		})
	}
}

type paymentBreakdown struct {
	Method string  `bson:"_id" json:"payment_method"`
	Count  int64   `bson:"count" json:"count"`
	Total  float64 `bson:"total" json:"total"`
}

func SalesReport(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/reports/sales"
		defer handlePanic(c, route)

		period := c.DefaultQuery("period", periodToday)
		from, to, err := periodRange(period, c.Query("start_date"), c.Query("end_date"), time.Now(), loc)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var (
			summary  periodStats
			payments []paymentBreakdown
			top      []productRank
		)

		g, gctx := newAggregateGroup(ctx)
		g.Go(func() (err error) {
			summary, err = loadPeriodStats(gctx, db, from, to)
			return err
		})
		g.Go(func() error {
			cursor, err := db.Collection("sales").Aggregate(gctx, mongo.Pipeline{
				{{Key: "$match", Value: completedBetween(from, to)}},
				{{Key: "$group", Value: bson.M{
					"_id":   "$payment_method",
					"count": bson.M{"$sum": 1},
					"total": bson.M{"$sum": "$total_amount"},
				}}},
				{{Key: "$sort", Value: bson.M{"total": -1}}},
			})
			if err != nil {
				return err
			}
			payments = make([]paymentBreakdown, 0)
			if err := cursor.All(gctx, &payments); err != nil {
				return err
			}
			for i := range payments {
				payments[i].Total = round2(payments[i].Total)
			}
			return nil
		})
		g.Go(func() error {
			rows, err := loadTopProducts(gctx, db, from, to, "quantity", 10)
			top = rows
			return err
		})
		if err := g.Wait(); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"period":            period,
			"start_date":        from.In(loc).Format(dateLayout),
			"end_date":          to.In(loc).AddDate(0, 0, -1).Format(dateLayout),
			"summary":           summary,
			"payment_breakdown": payments,
			"top_products":      top,
		})
	}
}

// loadTopProducts ranks products sold in completed sales in [from, to).
// sortBy is "quantity" or "revenue".
func loadTopProducts(ctx context.Context, db *mongo.Database, from, to time.Time, sortBy string, limit int64) ([]productRank, error) {
	cursor, err := db.Collection("sales").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: completedBetween(from, to)}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$group", Value: bson.M{
			"_id":          bson.M{"$toString": "$items.product_id"},
			"product_name": bson.M{"$first": "$items.product_name"},
			"quantity":     bson.M{"$sum": "$items.quantity"},
			"revenue":      bson.M{"$sum": "$items.total_price"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: sortBy, Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, err
	}
	rows := make([]productRank, 0)
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Revenue = round2(rows[i].Revenue)
	}
	return rows, nil
}

type categoryValuation struct {
	CategoryID   interface{} `bson:"_id" json:"category_id"`
	CategoryName string      `bson:"category_name" json:"category_name"`
	Products     int64       `bson:"products" json:"products"`
	Units        int64       `bson:"units" json:"units"`
	CostValue    float64     `bson:"cost_value" json:"cost_value"`
	RetailValue  float64     `bson:"retail_value" json:"retail_value"`
}

// summarizeValuation totals per-category valuations.
func summarizeValuation(rows []categoryValuation) gin.H {
	var products, units int64
	var cost, retail float64
	for i := range rows {
		rows[i].CostValue = round2(rows[i].CostValue)
		rows[i].RetailValue = round2(rows[i].RetailValue)
		if rows[i].CategoryName == "" {
			rows[i].CategoryName = "Uncategorized"
		}
		products += rows[i].Products
		units += rows[i].Units
		cost += rows[i].CostValue
		retail += rows[i].RetailValue
	}
	return gin.H{
		"total_products":         products,
		"total_units":            units,
		"total_cost_value":       round2(cost),
		"total_retail_value":     round2(retail),
		"potential_gross_profit": round2(retail - cost),
	}
}

func InventoryReport(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/reports/inventory"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("products").Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: activeProductFilter()}},
			{{Key: "$group", Value: bson.M{
				"_id":          "$category_id",
				"products":     bson.M{"$sum": 1},
				"units":        bson.M{"$sum": "$stock_quantity"},
				"cost_value":   bson.M{"$sum": bson.M{"$multiply": bson.A{"$stock_quantity", "$cost_price"}}},
				"retail_value": bson.M{"$sum": bson.M{"$multiply": bson.A{"$stock_quantity", "$price"}}},
			}}},
			{{Key: "$lookup", Value: bson.M{"from": "categories", "localField": "_id", "foreignField": "_id", "as": "category"}}},
			{{Key: "$addFields", Value: bson.M{"category_name": bson.M{"$ifNull": bson.A{bson.M{"$first": "$category.name"}, ""}}}}},
			{{Key: "$project", Value: bson.M{"category": 0}}},
			{{Key: "$sort", Value: bson.M{"retail_value": -1}}},
		})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		categories := make([]categoryValuation, 0)
		if err := cursor.All(ctx, &categories); err != nil {
			respondDBError(c, route, err)
			return
		}

		filter := activeProductFilter()
		filter["is_active"] = true
		filter["$expr"] = bson.M{"$lte": bson.A{"$stock_quantity", "$min_stock_level"}}
		lowCursor, err := db.Collection("products").Find(ctx, filter, options.Find().
			SetSort(bson.D{{Key: "stock_quantity", Value: 1}}).
			SetLimit(50))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer lowCursor.Close(ctx)

		lowStock, err := decodeProducts(ctx, lowCursor)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valuation":       summarizeValuation(categories),
			"by_category":     categories,
			"low_stock_items": lowStock,
		})
	}
}
