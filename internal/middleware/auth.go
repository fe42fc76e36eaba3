package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"stockpos/internal/auth"
	"stockpos/internal/logger"
	"stockpos/internal/models"
)

const (
	AccessTokenCookie = "access_token"
	currentUserKey    = "currentUser"
	claimsKey         = "claims"
)

type authFailure struct {
	status  int
	message string
}

func (f *authFailure) Error() string { return f.message }

// tokenFromRequest prefers the Authorization header and falls back to the session cookie.
func tokenFromRequest(c *gin.Context) string {
	if token, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
		return token
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	return ""
}

func resolveUser(c *gin.Context, db *mongo.Database, secret, raw string) (*models.User, *auth.Claims, error) {
	if raw == "" {
		return nil, nil, &authFailure{http.StatusUnauthorized, "missing token"}
	}

	claims, err := auth.ParseAccessToken(raw, secret)
	if err != nil {
		return nil, nil, &authFailure{http.StatusUnauthorized, "could not validate credentials"}
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, &authFailure{http.StatusUnauthorized, "could not validate credentials"}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var user models.User
	err = db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, &authFailure{http.StatusUnauthorized, "could not validate credentials"}
	}
	if err != nil {
		logger.Named("auth").Error("user lookup failed", zap.Error(err))
		return nil, nil, &authFailure{http.StatusInternalServerError, "db error"}
	}
	if !user.IsActive {
		return nil, nil, &authFailure{http.StatusForbidden, "inactive user"}
	}
	return &user, claims, nil
}

// Authenticate verifies the access token and loads the active user behind it.
func Authenticate(db *mongo.Database, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := resolveUser(c, db, secret, tokenFromRequest(c))
		if err != nil {
			var failure *authFailure
			errors.As(err, &failure)
			logger.Named("auth").Debug("request rejected", zap.String("path", c.FullPath()), zap.String("reason", failure.message))
			c.AbortWithStatusJSON(failure.status, gin.H{"error": failure.message})
			return
		}

		c.Set(currentUserKey, user)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRoles must run after Authenticate.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if !HasRole(user, roles...) {
			logger.Named("auth").Info("role denied",
				zap.String("user", user.Username),
				zap.String("role", user.Role),
				zap.Strings("required", roles),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not enough permissions"})
			return
		}
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

func HasRole(user *models.User, roles ...string) bool {
	if user == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

// SetCurrentUser is used by handlers that authenticate outside the middleware chain.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(currentUserKey, user)
}

// Authorize resolves a raw token to an active user. The websocket endpoint
// uses it because browsers cannot set headers on upgrade requests.
func Authorize(c *gin.Context, db *mongo.Database, secret, raw string) (*models.User, int, error) {
	user, _, err := resolveUser(c, db, secret, raw)
	if err != nil {
		var failure *authFailure
		if errors.As(err, &failure) {
			return nil, failure.status, err
		}
		return nil, http.StatusUnauthorized, err
	}
	return user, http.StatusOK, nil
}

func TokenFromRequest(c *gin.Context) string {
	if raw := tokenFromRequest(c); raw != "" {
		return raw
	}
	return c.Query("token")
}
