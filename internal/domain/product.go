package domain

import "time"

// Product is a catalog entry as listed by the API.
type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discountPrice"`
	ImageURL      string   `json:"imageUrl"`
	Category      string   `json:"category"`
	IsAvailable   bool     `json:"isAvailable"`
	StockQuantity int      `json:"stockQuantity"`
	QuantityUnit  string   `json:"quantityUnit"`
}

// ProductDetail is the single-product view with all images.
type ProductDetail struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Price         float64    `json:"price"`
	DiscountPrice *float64   `json:"discountPrice"`
	ImageURLs     []string   `json:"imageUrls"`
	Category      string     `json:"category"`
	IsAvailable   bool       `json:"isAvailable"`
	StockQuantity int        `json:"stockQuantity"`
	QuantityUnit  string     `json:"quantityUnit"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
}

// LineItem builds the guest cart line for this product. Quantity is left to
// the caller.
func (p Product) LineItem() CartLineItem {
	return CartLineItem{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		UnitPrice:     p.Price,
		DiscountPrice: p.DiscountPrice,
		ImageURL:      p.ImageURL,
		Category:      p.Category,
		StockQuantity: p.StockQuantity,
		QuantityUnit:  p.QuantityUnit,
		IsSelected:    true,
	}
}

// Summary drops the detail-only fields.
func (p ProductDetail) Summary() Product {
	var image string
	if len(p.ImageURLs) > 0 {
		image = p.ImageURLs[0]
	}
	return Product{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		DiscountPrice: p.DiscountPrice,
		ImageURL:      image,
		Category:      p.Category,
		IsAvailable:   p.IsAvailable,
		StockQuantity: p.StockQuantity,
		QuantityUnit:  p.QuantityUnit,
	}
}

// Category is a product category with its display label.
type Category struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Categories is the fixed category list the storefront offers.
var Categories = []Category{
	{Value: "pizza", Label: "Pizza"},
	{Value: "burger", Label: "Burger"},
	{Value: "salad", Label: "Salad"},
	{Value: "pasta", Label: "Pasta"},
	{Value: "dessert", Label: "Dessert"},
	{Value: "drink", Label: "Drink"},
	{Value: "appetizer", Label: "Appetizer"},
	{Value: "soup", Label: "Soup"},
	{Value: "sandwich", Label: "Sandwich"},
	{Value: "breakfast", Label: "Breakfast"},
}
