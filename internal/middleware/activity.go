package middleware

import (
	"github.com/gin-gonic/gin"

	"stockpos/internal/activity"
)

// ActivityTracker records last_activity for the authenticated user once the handler has run.
func ActivityTracker(tracker *activity.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if tracker == nil || !activity.ShouldTrack(c.Request.Method, c.Request.URL.Path) {
			return
		}
		if user, ok := CurrentUser(c); ok {
			tracker.Touch(user.ID)
		}
	}
}
