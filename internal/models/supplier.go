package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Supplier struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CompanyName   string             `bson:"company_name" json:"company_name"`
	ContactPerson string             `bson:"contact_person,omitempty" json:"contact_person,omitempty"`
	Email         string             `bson:"email,omitempty" json:"email,omitempty"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address       string             `bson:"address,omitempty" json:"address,omitempty"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	IsActive      bool               `bson:"is_active" json:"is_active"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
