package handlers

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"stockpos/internal/models"
)

const walkInCustomer = "Walk-in Customer"

type saleLine struct {
	ProductID primitive.ObjectID
	Quantity  int
	Discount  float64
}

type saleTotals struct {
	Subtotal    float64
	Discount    float64
	TaxRate     float64
	TaxAmount   float64
	Total       float64
	TotalProfit float64
}

// mergeLines parses request items and folds repeated products into a single
// line, keeping first-seen order.
func mergeLines(items []SaleItemRequest) ([]saleLine, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}

	index := make(map[primitive.ObjectID]int, len(items))
	lines := make([]saleLine, 0, len(items))
	for _, item := range items {
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("invalid product_id: %s", item.ProductID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be greater than zero")
		}
		if item.DiscountAmount < 0 {
			return nil, fmt.Errorf("discount_amount must not be negative")
		}
		if i, ok := index[id]; ok {
			lines[i].Quantity += item.Quantity
			lines[i].Discount += item.DiscountAmount
			continue
		}
		index[id] = len(lines)
		lines = append(lines, saleLine{ProductID: id, Quantity: item.Quantity, Discount: item.DiscountAmount})
	}
	return lines, nil
}

// priceLine snapshots the product onto a sale item.
func priceLine(p models.Product, line saleLine) (models.SaleItem, error) {
	gross := p.Price * float64(line.Quantity)
	if line.Discount > gross {
		return models.SaleItem{}, fmt.Errorf("discount for %s exceeds line total", p.Name)
	}

	profit := (p.Price-p.CostPrice)*float64(line.Quantity) - line.Discount
	return models.SaleItem{
		ProductID:      p.ID,
		ProductName:    p.Name,
		SKU:            p.SKU,
		Quantity:       line.Quantity,
		UnitPrice:      p.Price,
		CostPrice:      p.CostPrice,
		DiscountAmount: round2(line.Discount),
		TotalPrice:     round2(gross - line.Discount),
		Profit:         round2(math.Max(0, profit)),
	}, nil
}

func computeTotals(items []models.SaleItem, discount, taxRate float64) (saleTotals, error) {
	if taxRate < 0 || taxRate > 1 {
		return saleTotals{}, fmt.Errorf("tax_rate must be between 0 and 1")
	}
	if discount < 0 {
		return saleTotals{}, fmt.Errorf("discount_amount must not be negative")
	}

	var subtotal, profit float64
	for _, item := range items {
		subtotal += item.TotalPrice
		profit += item.Profit
	}
	subtotal = round2(subtotal)
	if discount > subtotal {
		return saleTotals{}, fmt.Errorf("discount_amount exceeds subtotal")
	}

	tax := round2((subtotal - discount) * taxRate)
	return saleTotals{
		Subtotal:    subtotal,
		Discount:    round2(discount),
		TaxRate:     taxRate,
		TaxAmount:   tax,
		Total:       round2(subtotal - discount + tax),
		TotalProfit: round2(math.Max(0, profit-discount)),
	}, nil
}

// settlePayment decides the sale status and change due.
func settlePayment(method string, received, total float64) (string, float64, error) {
	if !models.IsValidPaymentMethod(method) {
		return "", 0, paymentError{msg: "invalid payment_method"}
	}
	if method == models.PaymentNotPaid {
		return models.SaleStatusPending, 0, nil
	}
	if received < total {
		return "", 0, paymentError{msg: fmt.Sprintf("payment received (%.2f) is less than total (%.2f)", received, total)}
	}
	return models.SaleStatusCompleted, round2(received - total), nil
}

// customerDelta is the change to a customer's order count and purchase total
// when a sale moves between statuses. Only completed sales count.
func customerDelta(from, to string, total float64) (int, float64) {
	wasCounted := from == models.SaleStatusCompleted
	isCounted := to == models.SaleStatusCompleted
	switch {
	case !wasCounted && isCounted:
		return 1, total
	case wasCounted && !isCounted:
		return -1, -total
	default:
		return 0, 0
	}
}

// restoresStock reports whether moving a sale between statuses returns its
// items to inventory.
func restoresStock(from, to string) bool {
	return models.HoldsStock(from) && !models.HoldsStock(to)
}
