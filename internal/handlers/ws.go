package handlers

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"stockpos/internal/logger"
	"stockpos/internal/middleware"
	"stockpos/internal/notify"
)

// Notifications upgrades to a websocket once the caller's token checks out.
// Browsers cannot set headers on the upgrade, so the cookie or ?token= is used.
func Notifications(hub *notify.Hub, db *mongo.Database, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /ws"
		defer handlePanic(c, route)

		user, status, err := middleware.Authorize(c, db, secret, middleware.TokenFromRequest(c))
		if err != nil {
			respondWithError(c, status, route, err.Error())
			return
		}

		if err := hub.ServeWS(c.Writer, c.Request, user.ID); err != nil {
			logger.Named("notify").Debug("websocket upgrade failed", zap.String("user", user.Username), zap.Error(err))
			return
		}
		logger.Named("notify").Info("websocket connected", zap.String("user", user.Username))
	}
}
