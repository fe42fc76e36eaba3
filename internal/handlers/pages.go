package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockpos/internal/middleware"
	"stockpos/internal/models"
)

type navItem struct {
	Path  string
	Label string
}

// navFor lists the pages a role may open, in menu order.
func navFor(role string) []navItem {
	perms := models.PermissionsFor(role)
	items := []navItem{{"/dashboard", "Dashboard"}}
	if perms.AccessPOS {
		items = append(items, navItem{"/pos", "Point of Sale"})
	}
	items = append(items, navItem{"/products", "Products"}, navItem{"/categories", "Categories"})
	if perms.ManageCustomers {
		items = append(items, navItem{"/customers", "Customers"})
	}
	items = append(items, navItem{"/sales", "Sales"})
	if perms.ViewReports {
		items = append(items, navItem{"/reports", "Reports"})
	}
	if perms.ManageSuppliers {
		items = append(items, navItem{"/suppliers", "Suppliers"})
	}
	if perms.ManageExpenses {
		items = append(items, navItem{"/expenses", "Expenses"})
	}
	if perms.ManageUsers {
		items = append(items, navItem{"/users", "Users"})
	}
	return items
}

func Home() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard")
	}
}

func LoginPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "login.html", gin.H{"title": "Sign in"})
	}
}

func ResetPasswordPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "reset-password.html", gin.H{
			"title": "Reset password",
			"token": c.Query("token"),
		})
	}
}

func LogoutPage(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clearSessionCookie(c, cfg)
		c.Redirect(http.StatusFound, "/login")
	}
}

// Page renders an authenticated page with the shared layout data.
func Page(template, title, active string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		role := ""
		if user != nil {
			role = user.Role
		}
		c.HTML(http.StatusOK, template, gin.H{
			"title":       title,
			"active":      active,
			"user":        user,
			"nav":         navFor(role),
			"permissions": models.PermissionsFor(role),
		})
	}
}
