package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
	SaleStatusRefunded  = "refunded"
)

const (
	PaymentCash          = "cash"
	PaymentCard          = "card"
	PaymentMobileMoney   = "mobile_money"
	PaymentDigitalWallet = "digital_wallet"
	PaymentBankTransfer  = "bank_transfer"
	PaymentNotPaid       = "not_paid"
)

var PaymentMethods = []string{
	PaymentCash,
	PaymentCard,
	PaymentMobileMoney,
	PaymentDigitalWallet,
	PaymentBankTransfer,
	PaymentNotPaid,
}

func IsValidPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

var saleTransitions = map[string][]string{
	SaleStatusPending:   {SaleStatusCompleted, SaleStatusCancelled},
	SaleStatusCompleted: {SaleStatusRefunded, SaleStatusCancelled},
}

// CanTransitionSale reports whether a sale may move from one status to another.
func CanTransitionSale(from, to string) bool {
	for _, next := range saleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HoldsStock reports whether items of a sale in this status are deducted from inventory.
func HoldsStock(status string) bool {
	return status == SaleStatusPending || status == SaleStatusCompleted
}

type SaleItem struct {
	ProductID      primitive.ObjectID `bson:"product_id" json:"product_id"`
	ProductName    string             `bson:"product_name" json:"product_name"`
	SKU            string             `bson:"sku" json:"sku"`
	Quantity       int                `bson:"quantity" json:"quantity"`
	UnitPrice      float64            `bson:"unit_price" json:"unit_price"`
	CostPrice      float64            `bson:"cost_price" json:"cost_price"`
	DiscountAmount float64            `bson:"discount_amount" json:"discount_amount"`
	TotalPrice     float64            `bson:"total_price" json:"total_price"`
	Profit         float64            `bson:"profit" json:"profit"`
}

type Sale struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SaleNumber      string              `bson:"sale_number" json:"sale_number"`
	CustomerID      *primitive.ObjectID `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	CustomerName    string              `bson:"customer_name,omitempty" json:"customer_name,omitempty"`
	CashierID       primitive.ObjectID  `bson:"cashier_id" json:"cashier_id"`
	CashierName     string              `bson:"cashier_name" json:"cashier_name"`
	Items           []SaleItem          `bson:"items" json:"items"`
	Subtotal        float64             `bson:"subtotal" json:"subtotal"`
	TaxRate         float64             `bson:"tax_rate" json:"tax_rate"`
	TaxAmount       float64             `bson:"tax_amount" json:"tax_amount"`
	DiscountAmount  float64             `bson:"discount_amount" json:"discount_amount"`
	TotalAmount     float64             `bson:"total_amount" json:"total_amount"`
	TotalProfit     float64             `bson:"total_profit" json:"total_profit"`
	PaymentMethod   string              `bson:"payment_method" json:"payment_method"`
	PaymentReceived float64             `bson:"payment_received" json:"payment_received"`
	ChangeGiven     float64             `bson:"change_given" json:"change_given"`
	Status          string              `bson:"status" json:"status"`
	Notes           string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
}
