package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/storefront/internal/domain"
)

func TestSelectors(t *testing.T) {
	items := []domain.CartLineItem{
		{ID: "a", UnitPrice: 10, Quantity: 2, IsSelected: true},
		{ID: "b", UnitPrice: 10, DiscountPrice: domain.Price(6), Quantity: 3, IsSelected: true},
		{ID: "c", UnitPrice: 5, Quantity: 1, IsSelected: false},
	}

	assert.Equal(t, 6, TotalQuantity(items))
	assert.Equal(t, []string{"a", "b"}, SelectedIDs(items))
	assert.Len(t, SelectedItems(items), 2)
	assert.Equal(t, 18.0, LineTotal(items[1]))
	assert.Equal(t, 43.0, Subtotal(items))
	assert.Equal(t, 38.0, SelectedSubtotal(items))
	assert.False(t, IsEmpty(items))
}

func TestSelectors_Empty(t *testing.T) {
	assert.Zero(t, TotalQuantity(nil))
	assert.Empty(t, SelectedIDs(nil))
	assert.Zero(t, SelectedSubtotal(nil))
	assert.True(t, IsEmpty(nil))
}
