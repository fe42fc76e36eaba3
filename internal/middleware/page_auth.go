package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// PageAuth guards server-rendered pages. Unauthenticated visitors are sent to
// the login page instead of receiving a JSON error.
func PageAuth(db *mongo.Database, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _, err := resolveUser(c, db, secret, tokenFromRequest(c))
		if err != nil {
			var failure *authFailure
			if errors.As(err, &failure) && failure.status == http.StatusInternalServerError {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.SetCookie(AccessTokenCookie, "", -1, "/", "", false, true)
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// PageRoles renders the forbidden page rather than a JSON body.
func PageRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := CurrentUser(c)
		if !HasRole(user, roles...) {
			c.HTML(http.StatusForbidden, "forbidden.html", gin.H{"user": user})
			c.Abort()
			return
		}
		c.Next()
	}
}
