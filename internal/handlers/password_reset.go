package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"stockpos/internal/auth"
	"stockpos/internal/logger"
	"stockpos/internal/mailer"
	"stockpos/internal/models"
)

type ResetConfig struct {
	BaseURL string
	TTL     time.Duration
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

const forgotPasswordMessage = "if the email is registered, a reset link has been sent"

func resetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// ForgotPassword answers identically whether or not the address exists.
func ForgotPassword(db *mongo.Database, m mailer.Mailer, cfg ResetConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/forgot-password"
		defer handlePanic(c, route)

		var req ForgotPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		email := strings.ToLower(strings.TrimSpace(req.Email))
		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"email": email, "is_active": true}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		token, err := auth.GenerateOpaqueToken()
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		resets := db.Collection("password_resets")
		if _, err := resets.UpdateMany(ctx, bson.M{"user_id": user.ID, "used": false}, bson.M{"$set": bson.M{"used": true}}); err != nil {
			respondDBError(c, route, err)
			return
		}

		now := time.Now().UTC()
		if _, err := resets.InsertOne(ctx, models.PasswordReset{
			UserID:    user.ID,
			TokenHash: auth.HashToken(token),
			ExpiresAt: now.Add(cfg.TTL),
			CreatedAt: now,
		}); err != nil {
			respondDBError(c, route, err)
			return
		}

		body, err := mailer.RenderPasswordReset(mailer.ResetEmail{
			Name:    user.FullName,
			Link:    resetLink(cfg.BaseURL, token),
			Minutes: int(cfg.TTL.Minutes()),
		})
		if err == nil {
			err = m.Send(ctx, user.Email, "Password reset", body)
		}
		if err != nil {
			logger.Named("auth").Error("password reset mail failed", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		}

		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
	}
}

func ResetPassword(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/reset-password"
		defer handlePanic(c, route)

		var req ResetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		now := time.Now().UTC()
		var reset models.PasswordReset
		err = db.Collection("password_resets").FindOneAndUpdate(ctx, bson.M{
			"token_hash": auth.HashToken(strings.TrimSpace(req.Token)),
			"used":       false,
			"expires_at": bson.M{"$gt": now},
		}, bson.M{"$set": bson.M{"used": true}}).Decode(&reset)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusBadRequest, route, "invalid or expired token")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		res, err := db.Collection("users").UpdateByID(ctx, reset.UserID, bson.M{
			"$set": bson.M{"hashed_password": hash, "updated_at": now},
		})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusBadRequest, route, "invalid or expired token")
			return
		}

		if _, err := db.Collection("refresh_tokens").UpdateMany(ctx,
			bson.M{"user_id": reset.UserID, "revoked": false},
			bson.M{"$set": bson.M{"revoked": true}},
		); err != nil {
			respondDBError(c, route, err)
			return
		}

		logger.Named("auth").Info("password reset", zap.String("user_id", reset.UserID.Hex()))
		c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
	}
}
