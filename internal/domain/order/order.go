package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Statuses lists every accepted status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is a label only; no payment is processed.
type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "Card"
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
)

// Valid reports whether m is one of the declared payment methods.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCashOnDelivery
}

// Order is a placed customer order. Line items are snapshots of the catalog
// at order time and never reference live products.
type Order struct {
	ID            string
	Items         []LineItem
	Total         decimal.Decimal
	Customer      Customer
	PaymentMethod PaymentMethod
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LineItem is a single product snapshot within an order.
type LineItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Customer is the contact snapshot captured at checkout.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// Patch lists the fields that may change after creation. Nil fields are left
// untouched.
type Patch struct {
	Status        *Status
	PaymentMethod *PaymentMethod
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.PaymentMethod == nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// List returns every order, newest first.
	List(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	// Update applies the patch, sets UpdatedAt to at and returns the stored
	// order.
	Update(ctx context.Context, id string, patch Patch, at time.Time) (*Order, error)
	Delete(ctx context.Context, id string) error
}
