package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RefreshToken struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID  `bson:"user_id" json:"user_id"`
	TokenHash       string              `bson:"token_hash" json:"-"`
	ExpiresAt       time.Time           `bson:"expires_at" json:"expires_at"`
	Revoked         bool                `bson:"revoked" json:"revoked"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	ReplacedByToken *primitive.ObjectID `bson:"replaced_by_token,omitempty" json:"replaced_by_token,omitempty"`
}

// PasswordReset is a single-use reset token; only the hash is stored.
type PasswordReset struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	TokenHash string             `bson:"token_hash" json:"-"`
	ExpiresAt time.Time          `bson:"expires_at" json:"expires_at"`
	Used      bool               `bson:"used" json:"used"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
