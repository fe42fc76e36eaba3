package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleAdmin            = "admin"
	RoleCashier          = "cashier"
	RoleInventoryManager = "inventory_manager"
)

var Roles = []string{RoleAdmin, RoleCashier, RoleInventoryManager}

func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// User is a staff account.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	FullName     string             `bson:"full_name" json:"full_name"`
	PasswordHash string             `bson:"hashed_password" json:"-"`
	Role         string             `bson:"role" json:"role"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	LastActivity *time.Time         `bson:"last_activity,omitempty" json:"last_activity,omitempty"`
}

// LastSeen is the most recent of last_login and last_activity.
func (u User) LastSeen() *time.Time {
	switch {
	case u.LastLogin == nil:
		return u.LastActivity
	case u.LastActivity == nil:
		return u.LastLogin
	case u.LastActivity.After(*u.LastLogin):
		return u.LastActivity
	default:
		return u.LastLogin
	}
}

// Permissions drive which navigation entries and actions the UI offers a role.
type Permissions struct {
	ManageUsers     bool `json:"manage_users"`
	ManageInventory bool `json:"manage_inventory"`
	ManageSuppliers bool `json:"manage_suppliers"`
	ManageExpenses  bool `json:"manage_expenses"`
	AccessPOS       bool `json:"access_pos"`
	ManageCustomers bool `json:"manage_customers"`
	DeleteCustomers bool `json:"delete_customers"`
	ViewReports     bool `json:"view_reports"`
	ExportSales     bool `json:"export_sales"`
}

func PermissionsFor(role string) Permissions {
	switch role {
	case RoleAdmin:
		return Permissions{
			ManageUsers:     true,
			ManageInventory: true,
			ManageSuppliers: true,
			ManageExpenses:  true,
			AccessPOS:       true,
			ManageCustomers: true,
			DeleteCustomers: true,
			ViewReports:     true,
			ExportSales:     true,
		}
	case RoleInventoryManager:
		return Permissions{
			ManageInventory: true,
			ManageSuppliers: true,
			ManageExpenses:  true,
			AccessPOS:       true,
			ManageCustomers: true,
			ViewReports:     true,
		}
	case RoleCashier:
		return Permissions{
			AccessPOS:       true,
			ManageCustomers: true,
			ViewReports:     true,
		}
	default:
		return Permissions{}
	}
}
