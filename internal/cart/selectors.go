package cart

import "github.com/utafrali/storefront/internal/domain"

// TotalQuantity sums the quantity of every line.
func TotalQuantity(items []domain.CartLineItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// SelectedItems returns the lines chosen for checkout.
func SelectedItems(items []domain.CartLineItem) []domain.CartLineItem {
	out := make([]domain.CartLineItem, 0, len(items))
	for _, item := range items {
		if item.IsSelected {
			out = append(out, item)
		}
	}
	return out
}

// SelectedIDs returns the ids of the selected lines in cart order.
func SelectedIDs(items []domain.CartLineItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsSelected {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// LineTotal is the line's effective price times its quantity.
func LineTotal(item domain.CartLineItem) float64 {
	return item.LineTotal()
}

// Subtotal sums every line.
func Subtotal(items []domain.CartLineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// SelectedSubtotal sums the selected lines, using the discount price when
// one is set.
func SelectedSubtotal(items []domain.CartLineItem) float64 {
	return Subtotal(SelectedItems(items))
}

// IsEmpty reports whether the cart has no lines.
func IsEmpty(items []domain.CartLineItem) bool {
	return len(items) == 0
}
