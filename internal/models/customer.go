package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Customer struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Email            string             `bson:"email,omitempty" json:"email,omitempty"`
	Phone            string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address          string             `bson:"address,omitempty" json:"address,omitempty"`
	City             string             `bson:"city,omitempty" json:"city,omitempty"`
	PostalCode       string             `bson:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country          string             `bson:"country,omitempty" json:"country,omitempty"`
	DateOfBirth      *time.Time         `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	Notes            string             `bson:"notes,omitempty" json:"notes,omitempty"`
	IsActive         bool               `bson:"is_active" json:"is_active"`
	TotalPurchases   float64            `bson:"total_purchases" json:"total_purchases"`
	TotalOrders      int                `bson:"total_orders" json:"total_orders"`
	LastPurchaseDate *time.Time         `bson:"last_purchase_date,omitempty" json:"last_purchase_date,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}
