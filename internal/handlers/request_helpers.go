package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"stockpos/internal/logger"
	"stockpos/internal/middleware"
	"stockpos/internal/notify"
)

const requestTimeout = 5 * time.Second

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
	}
}

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		logger.Named("handlers").Error("panic recovered", zap.String("route", route), zap.Any("panic", r), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func ensureDBConnection(ctx context.Context, db *mongo.Database) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Client().Ping(checkCtx, readpref.Primary())
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log := logger.Named("handlers").With(zap.String("route", route), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		log.Error(message)
	} else {
		log.Debug(message)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondDBError logs the driver error and answers 500 without leaking it.
func respondDBError(c *gin.Context, route string, err error) {
	logger.Named("handlers").Error("database error", zap.String("route", route), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "db error"})
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := fieldError.Field()
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "min", "gte", "gt":
				details = append(details, fmt.Sprintf("%s must be at least %s", field, fieldError.Param()))
			case "max", "lte", "lt":
				details = append(details, fmt.Sprintf("%s must be at most %s", field, fieldError.Param()))
			case "email":
				details = append(details, fmt.Sprintf("%s must be a valid email", field))
			case "oneof":
				details = append(details, fmt.Sprintf("%s must be one of: %s", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func parseObjectIDParam(c *gin.Context, name, route string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

// parseOptionalObjectID treats an empty string as "not set".
func parseOptionalObjectID(raw string) (*primitive.ObjectID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func currentUserName(c *gin.Context) (string, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return "", false
	}
	return user.Username, true
}

func publish(pub notify.Publisher, event notify.Event) {
	if pub != nil {
		pub.Publish(event)
	}
}
