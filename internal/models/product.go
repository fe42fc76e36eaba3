package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultMinStockLevel = 10

type Product struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name          string              `bson:"name" json:"name"`
	Description   string              `bson:"description,omitempty" json:"description,omitempty"`
	SKU           string              `bson:"sku" json:"sku"`
	Barcode       string              `bson:"barcode,omitempty" json:"barcode,omitempty"`
	CategoryID    *primitive.ObjectID `bson:"category_id,omitempty" json:"category_id,omitempty"`
	CategoryName  string              `bson:"-" json:"category_name,omitempty"`
	Price         float64             `bson:"price" json:"price"`
	CostPrice     float64             `bson:"cost_price" json:"cost_price"`
	StockQuantity int                 `bson:"stock_quantity" json:"stock_quantity"`
	MinStockLevel int                 `bson:"min_stock_level" json:"min_stock_level"`
	MaxStockLevel *int                `bson:"max_stock_level,omitempty" json:"max_stock_level,omitempty"`
	Unit          string              `bson:"unit" json:"unit"`
	SupplierID    *primitive.ObjectID `bson:"supplier_id,omitempty" json:"supplier_id,omitempty"`
	Supplier      string              `bson:"supplier,omitempty" json:"supplier,omitempty"`
	Tags          StringList          `bson:"tags,omitempty" json:"tags,omitempty"`
	ImagePath     string              `bson:"image_path,omitempty" json:"image_path,omitempty"`
	ThumbnailPath string              `bson:"thumbnail_path,omitempty" json:"thumbnail_path,omitempty"`
	IsActive      bool                `bson:"is_active" json:"is_active"`
	IsDeleted     bool                `bson:"is_deleted" json:"-"`
	DeletedAt     *time.Time          `bson:"deleted_at,omitempty" json:"-"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`

	IsLowStock   bool     `bson:"-" json:"is_low_stock"`
	ProfitMargin *float64 `bson:"-" json:"profit_margin,omitempty"`
}

// Derive fills the read-only computed fields.
func (p *Product) Derive() {
	p.IsLowStock = p.StockQuantity <= p.MinStockLevel
	p.ProfitMargin = nil
	if p.CostPrice > 0 {
		margin := (p.Price - p.CostPrice) / p.CostPrice * 100
		margin = math.Round(margin*100) / 100
		p.ProfitMargin = &margin
	}
}
