package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"stockpos/internal/activity"
	"stockpos/internal/config"
	"stockpos/internal/handlers"
	"stockpos/internal/mailer"
	"stockpos/internal/middleware"
	"stockpos/internal/models"
	"stockpos/internal/notify"
)

// Deps are the long-lived collaborators the routes close over.
type Deps struct {
	DB      *mongo.Database
	Hub     *notify.Hub
	Mailer  mailer.Mailer
	Tracker *activity.Tracker
}

func authConfig(cfg config.Config) handlers.AuthConfig {
	return handlers.AuthConfig{
		Secret:       cfg.JWTSecret,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		SecureCookie: cfg.GinMode == gin.ReleaseMode,
		Location:     cfg.Location(),
	}
}

// NewRouter registers every page and API route. An empty TemplatesGlob skips
// template loading, which lets tests build the API without the HTML tree.
func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	db := deps.DB
	loc := cfg.Location()
	authCfg := authConfig(cfg)
	var pub notify.Publisher
	if deps.Hub != nil {
		pub = deps.Hub
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(),
		middleware.SecurityHeaders(),
		middleware.ActivityTracker(deps.Tracker),
	)
	r.MaxMultipartMemory = 8 << 20

	if cfg.TemplatesGlob != "" {
		r.LoadHTMLGlob(cfg.TemplatesGlob)
	}
	r.Static("/public", "./public")
	r.Static("/uploads", cfg.UploadDir)

	r.GET("/health", handlers.Health(db))
	if deps.Hub != nil {
		r.GET("/ws", handlers.Notifications(deps.Hub, db, cfg.JWTSecret))
	}

	registerPages(r, db, cfg, authCfg)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		limiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute)
		authGroup.POST("/login", limiter.Middleware(), handlers.Login(db, authCfg))
		authGroup.POST("/register", limiter.Middleware(), handlers.Register(db, cfg.AllowRegistration))
		authGroup.POST("/refresh", handlers.Refresh(db, authCfg))
		authGroup.POST("/logout", handlers.Logout(db, authCfg))
		authGroup.POST("/forgot-password", limiter.Middleware(), handlers.ForgotPassword(db, deps.Mailer, handlers.ResetConfig{
			BaseURL: cfg.AppBaseURL,
			TTL:     cfg.PasswordResetTTL,
		}))
		authGroup.POST("/reset-password", limiter.Middleware(), handlers.ResetPassword(db))

		authed := authGroup.Group("", middleware.Authenticate(db, cfg.JWTSecret))
		authed.GET("/me", handlers.Me(authCfg))
		authed.POST("/change-password", handlers.ChangePassword(db))
		authed.GET("/ping", handlers.Ping())
	}

	secured := api.Group("", middleware.Authenticate(db, cfg.JWTSecret))
	stockRoles := middleware.RequireRoles(models.RoleAdmin, models.RoleInventoryManager)

	users := secured.Group("/users", middleware.AdminOnly())
	{
		users.GET("", handlers.ListUsers(db, loc))
		users.POST("", handlers.CreateUser(db))
		users.GET("/activity-summary", handlers.UserActivitySummary(db, loc))
		users.GET("/:id", handlers.GetUser(db, loc))
		users.PUT("/:id", handlers.UpdateUser(db))
		users.DELETE("/:id", handlers.DeleteUser(db))
	}

	categories := secured.Group("/categories")
	{
		categories.GET("", handlers.ListCategories(db))
		categories.GET("/tree", handlers.CategoryTree(db))
		categories.GET("/stats", handlers.CategoryStats(db))
		categories.GET("/:id", handlers.GetCategory(db))
		categories.POST("", stockRoles, handlers.CreateCategory(db))
		categories.PUT("/:id", stockRoles, handlers.UpdateCategory(db))
		categories.DELETE("/:id", stockRoles, handlers.DeleteCategory(db))
	}

	products := secured.Group("/products")
	{
		products.GET("", handlers.ListProducts(db))
		products.GET("/low-stock", handlers.LowStockProducts(db))
		products.GET("/:id", handlers.GetProduct(db))
		products.GET("/:id/barcode", handlers.ProductBarcode(db))
		products.POST("", stockRoles, handlers.CreateProduct(db))
		products.PUT("/:id", stockRoles, handlers.UpdateProduct(db))
		products.PATCH("/:id/stock", stockRoles, handlers.AdjustStock(db, pub))
		products.POST("/:id/image", stockRoles, handlers.UploadProductImage(db, cfg.UploadDir))
		products.DELETE("/:id", stockRoles, handlers.DeleteProduct(db))
	}

	customers := secured.Group("/customers")
	{
		customers.GET("", handlers.ListCustomers(db))
		customers.POST("", handlers.CreateCustomer(db))
		customers.GET("/:id", handlers.GetCustomer(db))
		customers.PUT("/:id", handlers.UpdateCustomer(db))
		customers.GET("/:id/sales", handlers.CustomerSales(db))
		customers.DELETE("/:id", middleware.AdminOnly(), handlers.DeleteCustomer(db))
	}

	pos := secured.Group("/pos")
	{
		pos.GET("/products/search", handlers.SearchPOSProducts(db))
		pos.POST("/sales", handlers.CreateSale(db, pub, cfg.DefaultTaxRate))
	}

	sales := secured.Group("/sales")
	{
		sales.GET("", handlers.ListSales(db, loc))
		sales.GET("/stats", handlers.SalesStats(db, loc))
		sales.GET("/export", middleware.AdminOnly(), handlers.ExportSales(db, loc))
		sales.GET("/:id", handlers.GetSale(db))
		sales.PUT("/:id/status", middleware.RequireRoles(models.RoleAdmin, models.RoleCashier), handlers.UpdateSaleStatus(db, pub))
		sales.DELETE("/:id", handlers.DeleteSale(db))
	}

	secured.POST("/stock/restock", stockRoles, handlers.Restock(db, pub, loc))

	suppliers := secured.Group("/suppliers", stockRoles)
	{
		suppliers.GET("", handlers.ListSuppliers(db))
		suppliers.GET("/dropdown", handlers.SupplierDropdown(db))
		suppliers.POST("", handlers.CreateSupplier(db))
		suppliers.GET("/:id", handlers.GetSupplier(db))
		suppliers.PUT("/:id", handlers.UpdateSupplier(db))
		suppliers.DELETE("/:id", handlers.DeleteSupplier(db))
		suppliers.PATCH("/:id/activate", handlers.ActivateSupplier(db))
		suppliers.PATCH("/:id/deactivate", handlers.DeactivateSupplier(db))
	}

	expenses := secured.Group("/expenses", stockRoles)
	{
		expenses.GET("", handlers.ListExpenses(db, loc))
		expenses.POST("", handlers.CreateExpense(db, loc))
		expenses.GET("/:id", handlers.GetExpense(db))
		expenses.PUT("/:id", handlers.UpdateExpense(db, loc))
		expenses.DELETE("/:id", handlers.DeleteExpense(db))
	}

	expenseCategories := secured.Group("/expense-categories", stockRoles)
	{
		expenseCategories.GET("", handlers.ListExpenseCategories(db))
		expenseCategories.POST("", handlers.CreateExpenseCategory(db))
		expenseCategories.PUT("/:id", handlers.UpdateExpenseCategory(db))
		expenseCategories.DELETE("/:id", handlers.DeleteExpenseCategory(db))
	}

	dashboard := secured.Group("/dashboard")
	{
		dashboard.GET("/summary", handlers.DashboardSummary(db, loc))
		dashboard.GET("/sales-chart", handlers.SalesChart(db, loc))
		dashboard.GET("/top-products", handlers.TopProducts(db, loc))
	}

	reports := secured.Group("/reports")
	{
		reports.GET("/stats", handlers.ReportStats(db, loc))
		reports.GET("/sales", handlers.SalesReport(db, loc))
		reports.GET("/inventory", handlers.InventoryReport(db))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

func registerPages(r *gin.Engine, db *mongo.Database, cfg config.Config, authCfg handlers.AuthConfig) {
	r.GET("/", handlers.Home())
	r.GET("/login", handlers.LoginPage())
	r.GET("/logout", handlers.LogoutPage(authCfg))
	r.GET("/reset-password", handlers.ResetPasswordPage())

	pages := r.Group("", middleware.PageAuth(db, cfg.JWTSecret))
	pages.GET("/dashboard", handlers.Page("dashboard.html", "Dashboard", "dashboard"))
	pages.GET("/pos", handlers.Page("pos.html", "Point of Sale", "pos"))
	pages.GET("/products", handlers.Page("products.html", "Products", "products"))
	pages.GET("/categories", handlers.Page("categories.html", "Categories", "categories"))
	pages.GET("/customers", handlers.Page("customers.html", "Customers", "customers"))
	pages.GET("/sales", handlers.Page("sales.html", "Sales", "sales"))
	pages.GET("/reports", handlers.Page("reports.html", "Reports", "reports"))
	pages.GET("/suppliers", handlers.Page("suppliers.html", "Suppliers", "suppliers"))
	pages.GET("/expenses", handlers.Page("expenses.html", "Expenses", "expenses"))
	pages.GET("/users", middleware.PageRoles(models.RoleAdmin), handlers.Page("users.html", "Users", "users"))
}
