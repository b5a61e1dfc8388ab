package domain

import "time"

// DeliveryStatus is an order's position in the delivery timeline.
type DeliveryStatus string

const (
	DeliveryPlaced    DeliveryStatus = "placed"
	DeliveryPreparing DeliveryStatus = "preparing"
	DeliveryOnTheWay  DeliveryStatus = "on-the-way"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// DeliveryTimeline lists the statuses in the order an order passes them.
var DeliveryTimeline = []DeliveryStatus{DeliveryPlaced, DeliveryPreparing, DeliveryOnTheWay, DeliveryDelivered}

// Label is the display name of the status.
func (s DeliveryStatus) Label() string {
	switch s {
	case DeliveryPlaced:
		return "Order Placed"
	case DeliveryPreparing:
		return "Preparing"
	case DeliveryOnTheWay:
		return "On the Way"
	case DeliveryDelivered:
		return "Delivered"
	default:
		return string(s)
	}
}

// Step is the zero-based timeline position, or -1 for an unknown status.
func (s DeliveryStatus) Step() int {
	for i, st := range DeliveryTimeline {
		if st == s {
			return i
		}
	}
	return -1
}

// OrderItem is one line of a placed order.
type OrderItem struct {
	ID            string  `json:"id"`
	FoodID        string  `json:"foodId"`
	FoodName      string  `json:"foodName"`
	UnitPrice     float64 `json:"unitPrice"`
	DiscountPrice float64 `json:"discountPrice"`
	Quantity      int     `json:"quantity"`
	TotalPrice    float64 `json:"totalPrice"`
	ImageURL      string  `json:"imageUrl"`
}

// DeliveryStatusTiming records when each timeline step completed.
type DeliveryStatusTiming struct {
	OrderPlacedCompletedAt *time.Time `json:"orderPlacedCompletedAt"`
	PreparingCompletedAt   *time.Time `json:"preparingCompletedAt"`
	OnTheWayCompletedAt    *time.Time `json:"onTheWayCompletedAt"`
	DeliveredCompletedAt   *time.Time `json:"deliveredCompletedAt"`
}

// CompletedAt returns the completion instant of status, or nil.
func (t DeliveryStatusTiming) CompletedAt(s DeliveryStatus) *time.Time {
	switch s {
	case DeliveryPlaced:
		return t.OrderPlacedCompletedAt
	case DeliveryPreparing:
		return t.PreparingCompletedAt
	case DeliveryOnTheWay:
		return t.OnTheWayCompletedAt
	case DeliveryDelivered:
		return t.DeliveredCompletedAt
	default:
		return nil
	}
}

// Order is a placed order with its lines and delivery progress.
type Order struct {
	ID                   string               `json:"id"`
	SlugID               string               `json:"slugId"`
	TotalAmount          float64              `json:"totalAmount"`
	PaymentMethod        string               `json:"paymentMethod"`
	DeliveryStatus       DeliveryStatus       `json:"deliveryStatus"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
	Items                []OrderItem          `json:"items"`
	DeliveryStatusTiming DeliveryStatusTiming `json:"deliveryStatusTiming"`
}

// OrderReceipt is returned when an order is created.
type OrderReceipt struct {
	OrderID        string         `json:"orderId"`
	SlugID         string         `json:"slugId"`
	TotalAmount    float64        `json:"totalAmount"`
	PaymentMethod  string         `json:"paymentMethod"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// PaymentMethod is how an order is paid.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
	PaymentBanking        PaymentMethod = "banking"
)

// Label is the display name of the method.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCashOnDelivery:
		return "Cash on Delivery"
	case PaymentBanking:
		return "Banking"
	default:
		return string(m)
	}
}

// Available reports whether orders can currently be placed with m. Online
// banking is listed but not yet accepted.
func (m PaymentMethod) Available() bool {
	return m == PaymentCashOnDelivery
}
