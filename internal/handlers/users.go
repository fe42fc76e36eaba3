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
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"stockpos/internal/activity"
	"stockpos/internal/auth"
	"stockpos/internal/logger"
	"stockpos/internal/middleware"
	"stockpos/internal/models"
)

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required,min=2,max=100"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=admin cashier inventory_manager"`
	IsActive *bool  `json:"is_active"`
}

type UpdateUserRequest struct {
	Username *string `json:"username" binding:"omitempty,min=3,max=50"`
	Email    *string `json:"email" binding:"omitempty,email"`
	FullName *string `json:"full_name" binding:"omitempty,min=2,max=100"`
	Password *string `json:"password" binding:"omitempty,min=6"`
	Role     *string `json:"role" binding:"omitempty,oneof=admin cashier inventory_manager"`
	IsActive *bool   `json:"is_active"`
}

type userInput struct {
	Username string
	Email    string
	FullName string
	Password string
	Role     string
	IsActive bool
}

// insertUser returns the created user, or a non-201 status with a message.
func insertUser(ctx context.Context, db *mongo.Database, in userInput) (*models.User, int, string) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !models.IsValidRole(in.Role) {
		return nil, http.StatusBadRequest, "invalid role"
	}

	users := db.Collection("users")
	count, err := users.CountDocuments(ctx, bson.M{"username": username})
	if err != nil {
		return nil, http.StatusInternalServerError, "db error"
	}
	if count > 0 {
		return nil, http.StatusConflict, "username already registered"
	}
	count, err = users.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return nil, http.StatusInternalServerError, "db error"
	}
	if count > 0 {
		return nil, http.StatusConflict, "email already registered"
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, http.StatusInternalServerError, "password hash failed"
	}

	now := time.Now().UTC()
	user := models.User{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     in.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return nil, http.StatusConflict, "username or email already registered"
	}
	if err != nil {
		logger.Named("users").Error("user insert failed", zap.Error(err))
		return nil, http.StatusInternalServerError, "db error"
	}
	user.ID, _ = res.InsertedID.(primitive.ObjectID)
	return &user, http.StatusCreated, ""
}

func ListUsers(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users"
		defer handlePanic(c, route)

		page, size, err := paginationFromQuery(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "username", "full_name", "email")
		}
		if role := strings.TrimSpace(c.Query("role")); role != "" {
			if !models.IsValidRole(role) {
				respondWithError(c, http.StatusBadRequest, route, "invalid role")
				return
			}
			filter["role"] = role
		}
		isActive, err := parseBoolQuery(c.Query("is_active"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if isActive != nil {
			filter["is_active"] = *isActive
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		total, err := db.Collection("users").CountDocuments(ctx, filter)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		cursor, err := db.Collection("users").Find(ctx, filter, options.Find().
			SetSkip((page-1)*size).
			SetLimit(size).
			SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		var users []models.User
		if err := cursor.All(ctx, &users); err != nil {
			respondDBError(c, route, err)
			return
		}

		now := time.Now()
		views := make([]userView, 0, len(users))
		for _, u := range users {
			views = append(views, newUserView(u, now, loc))
		}

		c.JSON(http.StatusOK, paginatedResponse(views, page, size, total))
	}
}

func CreateUser(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/users"
		defer handlePanic(c, route)

		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, status, msg := insertUser(ctx, db, userInput{
			Username: req.Username,
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
			Role:     req.Role,
			IsActive: isActive,
		})
		if status != http.StatusCreated {
			respondWithError(c, status, route, msg)
			return
		}

		logger.Named("users").Info("user created", zap.String("username", user.Username), zap.String("role", user.Role))
		c.JSON(http.StatusCreated, user)
	}
}

func GetUser(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"_id": id}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, newUserView(user, time.Now(), loc))
	}
}

func UpdateUser(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/users/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		current, _ := middleware.CurrentUser(c)
		if current != nil && current.ID == id {
			if req.IsActive != nil && !*req.IsActive {
				respondWithError(c, http.StatusBadRequest, route, "you cannot deactivate your own account")
				return
			}
			if req.Role != nil && *req.Role != current.Role {
				respondWithError(c, http.StatusBadRequest, route, "you cannot change your own role")
				return
			}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		users := db.Collection("users")
		update := bson.M{}

		if req.Username != nil {
			username := strings.TrimSpace(*req.Username)
			count, err := users.CountDocuments(ctx, bson.M{"username": username, "_id": bson.M{"$ne": id}})
			if err != nil {
				respondDBError(c, route, err)
				return
			}
			if count > 0 {
				respondWithError(c, http.StatusConflict, route, "username already registered")
				return
			}
			update["username"] = username
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			count, err := users.CountDocuments(ctx, bson.M{"email": email, "_id": bson.M{"$ne": id}})
			if err != nil {
				respondDBError(c, route, err)
				return
			}
			if count > 0 {
				respondWithError(c, http.StatusConflict, route, "email already registered")
				return
			}
			update["email"] = email
		}
		if req.FullName != nil {
			update["full_name"] = strings.TrimSpace(*req.FullName)
		}
		if req.Role != nil {
			update["role"] = *req.Role
		}
		if req.IsActive != nil {
			update["is_active"] = *req.IsActive
		}
		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
				return
			}
			update["hashed_password"] = hash
		}

		if len(update) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		update["updated_at"] = time.Now().UTC()

		var updated models.User
		err := users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": update},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "username or email already registered")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func DeleteUser(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/users/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		if current, ok := middleware.CurrentUser(c); ok && current.ID == id {
			respondWithError(c, http.StatusBadRequest, route, "you cannot delete your own account")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := db.Collection("users").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		if res.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}

		_, _ = db.Collection("refresh_tokens").UpdateMany(ctx, bson.M{"user_id": id}, bson.M{"$set": bson.M{"revoked": true}})

		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}

func summarizeActivity(users []models.User, now time.Time, loc *time.Location) map[string]int {
	summary := map[string]int{
		activity.StatusOnline:  0,
		activity.StatusRecent:  0,
		activity.StatusAway:    0,
		activity.StatusOffline: 0,
		"total":                len(users),
	}
	for _, u := range users {
		summary[activity.StatusAt(u.LastSeen(), now, loc).Status]++
	}
	return summary
}

func UserActivitySummary(db *mongo.Database, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users/activity-summary"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		cursor, err := db.Collection("users").Find(ctx, bson.M{"is_active": true},
			options.Find().SetProjection(bson.M{"last_login": 1, "last_activity": 1}))
		if err != nil {
			respondDBError(c, route, err)
			return
		}
		defer cursor.Close(ctx)

		var users []models.User
		if err := cursor.All(ctx, &users); err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, summarizeActivity(users, time.Now(), loc))
	}
}
