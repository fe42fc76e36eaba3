package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

// aggregateConcurrency caps how many aggregation queries one request runs at once.
var aggregateConcurrency = 4

func newAggregateGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := newAggregateGroup(ctx)
	g.SetLimit(aggregateConcurrency)
	return g, gctx
}

type salesOverview struct {
	TotalSales              float64 `bson:"total_sales" json:"total_sales"`
	TotalTransactions       int64   `bson:"total_transactions" json:"total_transactions"`
	AverageTransactionValue float64 `bson:"-" json:"average_transaction_value"`
	TotalItemsSold          int64   `bson:"total_items_sold" json:"total_items_sold"`
}

type inventoryOverview struct {
	TotalProducts  int64   `bson:"total_products" json:"total_products"`
	ActiveProducts int64   `bson:"active_products" json:"active_products"`
	LowStock       int64   `bson:"low_stock" json:"low_stock_products"`
	OutOfStock     int64   `bson:"out_of_stock" json:"out_of_stock_products"`
	InventoryValue float64 `bson:"inventory_value" json:"inventory_value"`
}

type recentActivity struct {
	Sales     int64 `json:"sales_24h"`
	Products  int64 `json:"new_products_24h"`
	Customers int64 `json:"new_customers_24h"`
}

type productRank struct {
	ProductID   string  `bson:"_id" json:"product_id"`
	ProductName string  `bson:"product_name" json:"product_name"`
	Quantity    int64   `bson:"quantity" json:"quantity_sold"`
	Revenue     float64 `bson:"revenue" json:"revenue"`
}

func loadSalesOverview(ctx context.Context, db *mongo.Database, from time.Time) (salesOverview, error) {
	cursor, err := db.Collection("sales").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: completedBetween(from, time.Time{})}},
		{{Key: "$group", Value: bson.M{
			"_id":                nil,
			"total_sales":        bson.M{"$sum": "$total_amount"},
			"total_transactions": bson.M{"$sum": 1},
			"total_items_sold":   bson.M{"$sum": bson.M{"$sum": "$items.quantity"}},
		}}},
	})
	if err != nil {
		return salesOverview{}, err
	}
	var rows []salesOverview
	if err := cursor.All(ctx, &rows); err != nil {
		return salesOverview{}, err
	}
	if len(rows) == 0 {
		return salesOverview{}, nil
	}
	out := rows[0]
	out.TotalSales = round2(out.TotalSales)
	if out.TotalTransactions > 0 {
		out.AverageTransactionValue = round2(out.TotalSales / float64(out.TotalTransactions))
	}
	return out, nil
}

func loadInventoryOverview(ctx context.Context, db *mongo.Database) (inventoryOverview, error) {
	cursor, err := db.Collection("products").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: activeProductFilter()}},
		{{Key: "$group", Value: bson.M{
			"_id":             nil,
			"total_products":  bson.M{"$sum": 1},
			"active_products": bson.M{"$sum": bson.M{"$cond": bson.A{"$is_active", 1, 0}}},
			"low_stock": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{"$is_active", bson.M{"$lte": bson.A{"$stock_quantity", "$min_stock_level"}}}}, 1, 0,
			}}},
			"out_of_stock": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{"$is_active", bson.M{"$lte": bson.A{"$stock_quantity", 0}}}}, 1, 0,
			}}},
			"inventory_value": bson.M{"$sum": bson.M{"$multiply": bson.A{"$stock_quantity", "$price"}}},
		}}},
	})
	if err != nil {
		return inventoryOverview{}, err
	}
	var rows []inventoryOverview
	if err := cursor.All(ctx, &rows); err != nil {
		return inventoryOverview{}, err
	}
	if len(rows) == 0 {
		return inventoryOverview{}, nil
	}
	rows[0].InventoryValue = round2(rows[0].InventoryValue)
	return rows[0], nil
}

func loadRecentActivity(ctx context.Context, db *mongo.Database, since time.Time) (recentActivity, error) {
	var out recentActivity
	var err error
	created := bson.M{"created_at": bson.M{"$gte": since.UTC()}}

	if out.Sales, err = db.Collection("sales").CountDocuments(ctx, created); err != nil {
		return out, err
	}
	if out.Products, err = db.Collection("products").CountDocuments(ctx, created); err != nil {
		return out, err
	}
	if out.Customers, err = db.Collection("customers").CountDocuments(ctx, created); err != nil {
		return out, err
	}
	return out, nil
}

func DashboardSummary(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/dashboard/summary"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		now := time.Now()
		today := startOfDay(now, loc)

		var (
			sales     salesOverview
			inventory inventoryOverview
			recent    recentActivity
			top       []productRank
		)

		g, gctx := newAggregateGroup(ctx)
		g.Go(func() (err error) {
			sales, err = loadSalesOverview(gctx, db, today)
			return err
		})
		g.Go(func() (err error) {
			inventory, err = loadInventoryOverview(gctx, db)
			return err
		})
		g.Go(func() (err error) {
			recent, err = loadRecentActivity(gctx, db, now.Add(-24*time.Hour))
			return err
		})
		g.Go(func() (err error) {
			top, err = loadTopProducts(gctx, db, today.AddDate(0, 0, -30), time.Time{}, "quantity", 5)
			return err
		})
		if err := g.Wait(); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sales_overview":     sales,
			"inventory_overview": inventory,
			"recent_activity":    recent,
			"top_products":       top,
			"generated_at":       now.In(loc).Format(time.RFC3339),
		})
	}
}

type chartPoint struct {
	Label string  `json:"label"`
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

// buildSalesChart lays out days consecutive days ending today, filling days
// without sales with zero.
func buildSalesChart(totals map[string]float64, today time.Time, days int) []chartPoint {
	points := make([]chartPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		key := day.Format(dateLayout)
		points = append(points, chartPoint{
			Label: dayLabel(day, today),
			Date:  key,
			Total: round2(totals[key]),
		})
	}
	return points
}

func SalesChart(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/dashboard/sales-chart"
		defer handlePanic(c, route)

		const days = 7
		today := startOfDay(time.Now(), loc)

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("sales").Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: completedBetween(today.AddDate(0, 0, -(days-1)), time.Time{})}},
			{{Key: "$group", Value: bson.M{
				"_id": bson.M{"$dateToString": bson.M{
					"format":   "%Y-%m-%d",
					"date":     "$created_at",
					"timezone": loc.String(),
				}},
				"total": bson.M{"$sum": "$total_amount"},
			}}},
		})
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		var rows []struct {
			Day   string  `bson:"_id"`
			Total float64 `bson:"total"`
		}
		if err := cursor.All(ctx, &rows); err != nil {
			respondDBError(c, route, err)
			return
		}

		totals := make(map[string]float64, len(rows))
		for _, r := range rows {
			totals[r.Day] = r.Total
		}

		points := buildSalesChart(totals, today, days)
		labels := make([]string, 0, len(points))
		data := make([]float64, 0, len(points))
		for _, p := range points {
			labels = append(labels, p.Label)
			data = append(data, p.Total)
		}

		c.JSON(http.StatusOK, gin.H{"labels": labels, "data": data, "points": points})
	}
}

func TopProducts(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/dashboard/top-products"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		from := startOfDay(time.Now(), loc).AddDate(0, 0, -6)
		top, err := loadTopProducts(ctx, db, from, time.Time{}, "revenue", 8)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		labels := make([]string, 0, len(top))
		data := make([]float64, 0, len(top))
		for i := range top {
			top[i].ProductName = truncateName(top[i].ProductName, 20)
			labels = append(labels, top[i].ProductName)
			data = append(data, top[i].Revenue)
		}

		c.JSON(http.StatusOK, gin.H{"labels": labels, "data": data, "products": top})
	}
}
