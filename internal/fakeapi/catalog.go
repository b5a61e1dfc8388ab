package fakeapi

import (
	"time"

	"github.com/utafrali/storefront/internal/domain"
)

var catalogCreatedAt = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// DefaultCatalog returns the products the fake backend serves when none
// are configured. Ids are left empty and derived from the names.
func DefaultCatalog() []domain.ProductDetail {
	p := func(name, category, desc string, price float64, discount *float64, stock int, unit string) domain.ProductDetail {
		return domain.ProductDetail{
			Name:          name,
			Description:   desc,
			Price:         price,
			DiscountPrice: discount,
			ImageURLs:     []string{"https://images.example.com/foods/" + category + ".jpg"},
			Category:      category,
			IsAvailable:   true,
			StockQuantity: stock,
			QuantityUnit:  unit,
			CreatedAt:     catalogCreatedAt,
		}
	}
	return []domain.ProductDetail{
		p("Margherita Pizza", "pizza", "Tomato, mozzarella and basil.", 9.5, domain.Price(8), 20, "pcs"),
		p("Pepperoni Pizza", "pizza", "Spicy pepperoni on a thin crust.", 11, nil, 15, "pcs"),
		p("Classic Burger", "burger", "Beef patty, cheddar and pickles.", 8.9, nil, 25, "pcs"),
		p("Caesar Salad", "salad", "Romaine, parmesan and croutons.", 7.2, domain.Price(6.5), 12, "bowl"),
		p("Tomato Soup", "soup", "Slow-cooked tomatoes with cream.", 4.5, nil, 30, "bowl"),
		p("Spaghetti Carbonara", "pasta", "Guanciale, egg yolk and pecorino.", 10.5, nil, 10, "plate"),
		p("Crème Brûlée", "dessert", "Vanilla custard, caramelised sugar.", 5.5, nil, 8, "pcs"),
		p("Lemonade", "drink", "Freshly squeezed.", 2.5, nil, 50, "glass"),
		p("Garlic Bread", "appetizer", "Baked with herb butter.", 3.2, nil, 0, "pcs"),
	}
}
