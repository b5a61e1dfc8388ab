package domain

import "encoding/json"

// CartLineItem is one product line in a cart. Prices are in the API's
// display currency.
type CartLineItem struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	UnitPrice     float64  `json:"price"`
	DiscountPrice *float64 `json:"discountPrice"`
	ImageURL      string   `json:"imageUrl"`
	Category      string   `json:"category"`
	Quantity      int      `json:"quantity"`
	StockQuantity int      `json:"stockQuantity"`
	QuantityUnit  string   `json:"quantityUnit"`
	IsSelected    bool     `json:"isSelected"`
}

// UnmarshalJSON defaults IsSelected to true when the payload omits it, as
// the server and older guest carts do.
func (i *CartLineItem) UnmarshalJSON(data []byte) error {
	type alias CartLineItem
	aux := struct {
		*alias
		IsSelected *bool `json:"isSelected"`
	}{alias: (*alias)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.IsSelected = aux.IsSelected == nil || *aux.IsSelected
	return nil
}

// EffectivePrice is the discount price when one is set, else the unit price.
func (i CartLineItem) EffectivePrice() float64 {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.UnitPrice
}

// LineTotal is EffectivePrice times quantity.
func (i CartLineItem) LineTotal() float64 {
	return i.EffectivePrice() * float64(i.Quantity)
}

// ClampQuantity bounds q to the item's stock. The result may be <= 0, which
// callers treat as removal.
func (i CartLineItem) ClampQuantity(q int) int {
	if q > i.StockQuantity {
		return i.StockQuantity
	}
	return q
}

// Snapshot is the canonical cart of a session.
type Snapshot struct {
	Items         []CartLineItem `json:"items"`
	IsInitialized bool           `json:"isInitialized"`
}

// Clone returns a deep copy so readers can never mutate engine state.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Items: CloneItems(s.Items), IsInitialized: s.IsInitialized}
}

// IndexOf returns the index of the line item with the given id, or -1.
func (s Snapshot) IndexOf(id string) int {
	return IndexOf(s.Items, id)
}

// IndexOf returns the index of the line item with the given id, or -1.
func IndexOf(items []CartLineItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// CloneItems copies items including the discount pointers.
func CloneItems(items []CartLineItem) []CartLineItem {
	out := make([]CartLineItem, len(items))
	for i, item := range items {
		if item.DiscountPrice != nil {
			d := *item.DiscountPrice
			item.DiscountPrice = &d
		}
		out[i] = item
	}
	return out
}

// Price returns a pointer to p, for optional price fields.
func Price(p float64) *float64 {
	return &p
}
