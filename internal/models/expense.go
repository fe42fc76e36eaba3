package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ExpenseStatusPaid    = "paid"
	ExpenseStatusNotPaid = "not_paid"
)

// ExpenseProduct records a restocked product on the expense that paid for it.
type ExpenseProduct struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	CostPrice float64            `bson:"cost_price" json:"cost_price"`
}

type Expense struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Description   string             `bson:"description" json:"description"`
	Category      string             `bson:"category" json:"category"`
	Amount        float64            `bson:"amount" json:"amount"`
	ExpenseDate   time.Time          `bson:"expense_date" json:"expense_date"`
	PaymentMethod string             `bson:"payment_method" json:"payment_method"`
	Vendor        string             `bson:"vendor,omitempty" json:"vendor,omitempty"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Products      []ExpenseProduct   `bson:"products,omitempty" json:"products,omitempty"`
	Status        string             `bson:"status" json:"status"`
	IsPaid        bool               `bson:"is_paid" json:"is_paid"`
	CreatedBy     primitive.ObjectID `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// ExpensePaidBy reports whether a payment method settles an expense immediately.
func ExpensePaidBy(method string) bool {
	return method == PaymentCash || method == PaymentMobileMoney
}

const defaultExpenseCategoryIcon = "📝"

// ExpenseCategory names an allowed value for Expense.Category. Default
// categories are created at startup and are read-only.
type ExpenseCategory struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Icon      string             `bson:"icon" json:"icon"`
	IsDefault bool               `bson:"is_default" json:"is_default"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedBy string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	UpdatedBy string             `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

var DefaultExpenseCategories = []ExpenseCategory{
	{Name: "Restocking", Icon: "📦"},
	{Name: "Stocking", Icon: "📋"},
}

func ExpenseCategoryIcon(icon string) string {
	if icon == "" {
		return defaultExpenseCategoryIcon
	}
	return icon
}
