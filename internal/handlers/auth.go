package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"stockpos/internal/activity"
	"stockpos/internal/auth"
	"stockpos/internal/logger"
	"stockpos/internal/middleware"
	"stockpos/internal/models"
)

// AuthConfig carries token settings shared by the auth endpoints.
type AuthConfig struct {
	Secret       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	SecureCookie bool
	Location     *time.Location
}

type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required,min=2,max=100"`
	Password string `json:"password" binding:"required,min=6"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

type userView struct {
	models.User
	ActivityStatus activity.Status `json:"activity_status"`
}

func newUserView(u models.User, now time.Time, loc *time.Location) userView {
	return userView{User: u, ActivityStatus: activity.StatusAt(u.LastSeen(), now, loc)}
}

type issuedTokens struct {
	AccessToken    string
	RefreshToken   string
	RefreshTokenID primitive.ObjectID
	ExpiresIn      int64
}

func issueTokens(ctx context.Context, db *mongo.Database, user models.User, cfg AuthConfig) (*issuedTokens, error) {
	accessToken, err := auth.IssueAccessToken(user.ID, user.Username, user.Role, cfg.Secret, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	plainRefresh, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	refresh := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashToken(plainRefresh),
		ExpiresAt: now.Add(cfg.RefreshTTL),
		CreatedAt: now,
	}

	res, err := db.Collection("refresh_tokens").InsertOne(ctx, refresh)
	if err != nil {
		return nil, err
	}

	refreshID, _ := res.InsertedID.(primitive.ObjectID)
	return &issuedTokens{
		AccessToken:    accessToken,
		RefreshToken:   plainRefresh,
		RefreshTokenID: refreshID,
		ExpiresIn:      int64(cfg.AccessTTL.Seconds()),
	}, nil
}

func setSessionCookie(c *gin.Context, token string, cfg AuthConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, token, int(cfg.AccessTTL.Seconds()), "/", "", cfg.SecureCookie, true)
}

func clearSessionCookie(c *gin.Context, cfg AuthConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", cfg.SecureCookie, true)
}

func tokenResponse(tokens *issuedTokens, user models.User, cfg AuthConfig) gin.H {
	return gin.H{
		"access_token":  tokens.AccessToken,
		"token_type":    "bearer",
		"expires_in":    tokens.ExpiresIn,
		"refresh_token": tokens.RefreshToken,
		"user":          newUserView(user, time.Now(), cfg.Location),
	}
}

// Login accepts a username or an email address.
func Login(db *mongo.Database, cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/login"
		defer handlePanic(c, route)

		var req LoginRequest
		if err := c.ShouldBind(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		identifier := strings.TrimSpace(req.Username)
		filter := bson.M{"username": identifier}
		if strings.Contains(identifier, "@") {
			filter = bson.M{"email": strings.ToLower(identifier)}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, filter).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusUnauthorized, route, "incorrect username or password")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		if !auth.CheckPassword(user.PasswordHash, req.Password) {
			logger.Named("auth").Info("login failed", zap.String("username", identifier), zap.String("ip", c.ClientIP()))
			respondWithError(c, http.StatusUnauthorized, route, "incorrect username or password")
			return
		}
		if !user.IsActive {
			respondWithError(c, http.StatusForbidden, route, "inactive user")
			return
		}

		now := time.Now().UTC()
		if _, err := db.Collection("users").UpdateByID(ctx, user.ID, bson.M{
			"$set": bson.M{"last_login": now, "last_activity": now},
		}); err != nil {
			logger.Named("auth").Warn("last_login update failed", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		}
		user.LastLogin = &now
		user.LastActivity = &now

		tokens, err := issueTokens(ctx, db, user, cfg)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		logger.Named("auth").Info("login succeeded", zap.String("username", user.Username), zap.String("role", user.Role))
		setSessionCookie(c, tokens.AccessToken, cfg)
		c.JSON(http.StatusOK, tokenResponse(tokens, user, cfg))
	}
}

// Register creates a cashier account. Disabled unless allowed by configuration.
func Register(db *mongo.Database, allowed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/register"
		defer handlePanic(c, route)

		if !allowed {
			respondWithError(c, http.StatusNotFound, route, "registration is disabled")
			return
		}

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, status, msg := insertUser(ctx, db, userInput{
			Username: req.Username,
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
			Role:     models.RoleCashier,
			IsActive: true,
		})
		if status != http.StatusCreated {
			respondWithError(c, status, route, msg)
			return
		}

		logger.Named("auth").Info("user registered", zap.String("username", user.Username))
		c.JSON(http.StatusCreated, user)
	}
}

func Refresh(db *mongo.Database, cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/refresh"
		defer handlePanic(c, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		// The old token is revoked before anything is issued so a replayed
		// token can win at most once.
		tokens := db.Collection("refresh_tokens")
		var token models.RefreshToken
		err := tokens.FindOneAndUpdate(ctx, bson.M{
			"token_hash": auth.HashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":    false,
			"expires_at": bson.M{"$gt": time.Now().UTC()},
		}, bson.M{"$set": bson.M{"revoked": true}}).Decode(&token)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusUnauthorized, route, "invalid or expired refresh token")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": token.UserID}).Decode(&user); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "user not found")
			return
		}
		if !user.IsActive {
			respondWithError(c, http.StatusForbidden, route, "inactive user")
			return
		}

		issued, err := issueTokens(ctx, db, user, cfg)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		if _, err := tokens.UpdateByID(ctx, token.ID, bson.M{
			"$set": bson.M{"replaced_by_token": issued.RefreshTokenID},
		}); err != nil {
			respondDBError(c, route, err)
			return
		}

		setSessionCookie(c, issued.AccessToken, cfg)
		c.JSON(http.StatusOK, tokenResponse(issued, user, cfg))
	}
}

// Logout revokes the refresh token when one is supplied and always clears the session cookie.
func Logout(db *mongo.Database, cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/logout"
		defer handlePanic(c, route)

		clearSessionCookie(c, cfg)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"message": "logged out"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := db.Collection("refresh_tokens").UpdateOne(ctx, bson.M{
			"token_hash": auth.HashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":    false,
		}, bson.M{"$set": bson.M{"revoked": true}})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusUnauthorized, route, "invalid refresh token")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

func Me(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user":        newUserView(*user, time.Now(), cfg.Location),
			"permissions": models.PermissionsFor(user.Role),
		})
	}
}

func ChangePassword(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/change-password"
		defer handlePanic(c, route)

		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "not authenticated")
			return
		}

		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
			respondWithError(c, http.StatusBadRequest, route, "current password is incorrect")
			return
		}
		if req.CurrentPassword == req.NewPassword {
			respondWithError(c, http.StatusBadRequest, route, "new password must differ from the current one")
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if _, err := db.Collection("users").UpdateByID(ctx, user.ID, bson.M{
			"$set": bson.M{"hashed_password": hash, "updated_at": time.Now().UTC()},
		}); err != nil {
			respondDBError(c, route, err)
			return
		}

		logger.Named("auth").Info("password changed", zap.String("username", user.Username))
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

func Ping() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	}
}
