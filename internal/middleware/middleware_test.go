package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"stockpos/internal/auth"
	"stockpos/internal/models"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func userDoc(id primitive.ObjectID, role string, active bool) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "username", Value: "jane"},
		{Key: "email", Value: "jane@example.com"},
		{Key: "full_name", Value: "Jane Doe"},
		{Key: "hashed_password", Value: "x"},
		{Key: "role", Value: role},
		{Key: "is_active", Value: active},
	}
}

func TestAuthenticate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	newRouter := func(mt *mtest.T) *gin.Engine {
		r := gin.New()
		r.GET("/me", Authenticate(mt.DB, testSecret), func(c *gin.Context) {
			user, ok := CurrentUser(c)
			if !ok {
				c.Status(http.StatusTeapot)
				return
			}
			c.JSON(http.StatusOK, gin.H{"username": user.Username, "role": user.Role})
		})
		return r
	}

	mt.Run("missing token", func(mt *mtest.T) {
		w := httptest.NewRecorder()
		newRouter(mt).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(mt, http.StatusUnauthorized, w.Code)
		assert.JSONEq(mt, `{"error":"missing token"}`, w.Body.String())
	})

	mt.Run("garbage token", func(mt *mtest.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		newRouter(mt).ServeHTTP(w, req)
		assert.Equal(mt, http.StatusUnauthorized, w.Code)
	})

	mt.Run("active user from header", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		token, err := auth.IssueAccessToken(id, "jane", models.RoleCashier, testSecret, time.Minute)
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.users", mtest.FirstBatch, userDoc(id, models.RoleCashier, true)))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newRouter(mt).ServeHTTP(w, req)

		assert.Equal(mt, http.StatusOK, w.Code)
		assert.JSONEq(mt, `{"username":"jane","role":"cashier"}`, w.Body.String())
	})

	mt.Run("cookie token", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		token, err := auth.IssueAccessToken(id, "jane", models.RoleAdmin, testSecret, time.Minute)
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.users", mtest.FirstBatch, userDoc(id, models.RoleAdmin, true)))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
		w := httptest.NewRecorder()
		newRouter(mt).ServeHTTP(w, req)

		assert.Equal(mt, http.StatusOK, w.Code)
	})

	mt.Run("inactive user", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		token, err := auth.IssueAccessToken(id, "jane", models.RoleCashier, testSecret, time.Minute)
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.users", mtest.FirstBatch, userDoc(id, models.RoleCashier, false)))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newRouter(mt).ServeHTTP(w, req)

		assert.Equal(mt, http.StatusForbidden, w.Code)
		assert.JSONEq(mt, `{"error":"inactive user"}`, w.Body.String())
	})

	mt.Run("deleted user", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		token, err := auth.IssueAccessToken(id, "jane", models.RoleCashier, testSecret, time.Minute)
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.users", mtest.FirstBatch))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newRouter(mt).ServeHTTP(w, req)

		assert.Equal(mt, http.StatusUnauthorized, w.Code)
	})
}

func withUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user != nil {
			SetCurrentUser(c, user)
		}
		c.Next()
	}
}

func TestRequireRoles(t *testing.T) {
	cases := []struct {
		name   string
		user   *models.User
		roles  []string
		status int
	}{
		{"no user", nil, []string{models.RoleAdmin}, http.StatusUnauthorized},
		{"wrong role", &models.User{Role: models.RoleCashier}, []string{models.RoleAdmin}, http.StatusForbidden},
		{"matching role", &models.User{Role: models.RoleInventoryManager}, []string{models.RoleAdmin, models.RoleInventoryManager}, http.StatusOK},
		{"any role", &models.User{Role: models.RoleCashier}, nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", withUser(tc.user), RequireRoles(tc.roles...), func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestPageAuthRedirectsToLogin(t *testing.T) {
	r := gin.New()
	r.GET("/dashboard", PageAuth(nil, testSecret), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }

	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients keep their own bucket")

	fixed = fixed.Add(time.Minute)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "bucket refills over time")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("requestId")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	require.NoError(t, err)
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, existing)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, existing, w.Header().Get(RequestIDHeader))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}
