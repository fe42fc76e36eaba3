package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"stockpos/internal/config"
	"stockpos/internal/mailer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		Timezone:           "UTC",
		UploadDir:          t.TempDir(),
		LoginRatePerMinute: 5,
		PasswordResetTTL:   time.Minute,
	}
}

func TestRouterRegistersAPI(t *testing.T) {
	r := NewRouter(testConfig(t), Deps{Mailer: mailer.LogMailer{}})

	routes := map[string]bool{}
	for _, ri := range r.Routes() {
		routes[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"POST /api/auth/login",
		"GET /api/users/activity-summary",
		"GET /api/categories/tree",
		"PATCH /api/products/:id/stock",
		"GET /api/products/:id/barcode",
		"POST /api/pos/sales",
		"GET /api/sales/export",
		"PUT /api/sales/:id/status",
		"POST /api/stock/restock",
		"PATCH /api/suppliers/:id/deactivate",
		"GET /api/suppliers/dropdown",
		"GET /api/expenses",
		"POST /api/expense-categories",
		"DELETE /api/expense-categories/:id",
		"GET /api/dashboard/summary",
		"GET /api/reports/inventory",
		"GET /dashboard",
		"GET /reset-password",
		"GET /health",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
	assert.False(t, routes["GET /ws"], "websocket route needs a hub")
}

func TestRouterRejectsAnonymousAPI(t *testing.T) {
	r := NewRouter(testConfig(t), Deps{Mailer: mailer.LogMailer{}})

	for _, path := range []string{"/api/users", "/api/products", "/api/reports/stats"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	r := NewRouter(testConfig(t), Deps{Mailer: mailer.LogMailer{}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("database up", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		r := NewRouter(testConfig(t), Deps{DB: mt.DB, Mailer: mailer.LogMailer{}})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(mt, http.StatusOK, w.Code)
		assert.Contains(mt, w.Body.String(), `"status":"ok"`)
	})

	mt.Run("database down", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 0}, {Key: "errmsg", Value: "unreachable"}})
		r := NewRouter(testConfig(t), Deps{DB: mt.DB, Mailer: mailer.LogMailer{}})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(mt, http.StatusServiceUnavailable, w.Code)
	})
}
