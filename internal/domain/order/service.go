package order

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an order id does not resolve to a stored order.
var ErrNotFound = errors.New("order not found")

// ValidationError reports a missing or malformed caller-supplied field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// CreateRequest holds the caller input for placing an order. Zero values mean
// the field was absent.
type CreateRequest struct {
	Items         []LineItem
	Total         decimal.Decimal
	Customer      *Customer
	PaymentMethod PaymentMethod
}

// Service implements the order lifecycle on top of a Repository.
type Service struct {
	orders Repository
	events Publisher
	now    func() time.Time
	newID  func() string
}

// NewService creates an order Service. A nil publisher disables events.
func NewService(orders Repository, events Publisher) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		orders: orders,
		events: events,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Create validates the request and persists a new Pending order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 || req.Total.IsZero() || req.Customer == nil || req.PaymentMethod == "" {
		return nil, invalid("", "Missing required fields")
	}
	for i, item := range req.Items {
		if item.Name == "" {
			return nil, invalid("items", "item name is required")
		}
		if item.Quantity < 1 {
			return nil, invalid("items", fmt.Sprintf("quantity must be at least 1 for item %d", i))
		}
	}
	c := req.Customer
	if c.Name == "" || c.Email == "" || c.Address == "" {
		return nil, invalid("user", "user name, email and address are required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, invalid("paymentMethod", fmt.Sprintf("invalid payment method %q", req.PaymentMethod))
	}

	now := s.now().UTC()
	o := &Order{
		ID:            s.newID(),
		Items:         req.Items,
		Total:         req.Total,
		Customer:      *c,
		PaymentMethod: req.PaymentMethod,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.publish(ctx, Event{Type: EventCreated, OrderID: o.ID, Status: o.Status, At: now})
	return o, nil
}

// List returns all orders, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// SetStatus overwrites the status of an order and nothing else.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if status == "" {
		return nil, invalid("status", "Status is required")
	}
	if !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("invalid status %q", status))
	}
	if !validID(id) {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	o, err := s.orders.Update(ctx, id, Patch{Status: &status}, now)
	if err != nil {
		return nil, errors.Wrapf(err, "set status of order %s", id)
	}

	s.publish(ctx, Event{Type: EventStatusChanged, OrderID: o.ID, Status: o.Status, At: now})
	return o, nil
}

// Update applies a whitelisted partial update to an order.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Order, error) {
	if patch.Empty() {
		return nil, invalid("", "no updatable fields provided")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("invalid status %q", *patch.Status))
	}
	if patch.PaymentMethod != nil && !patch.PaymentMethod.Valid() {
		return nil, invalid("paymentMethod", fmt.Sprintf("invalid payment method %q", *patch.PaymentMethod))
	}
	if !validID(id) {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	o, err := s.orders.Update(ctx, id, patch, now)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %s", id)
	}

	s.publish(ctx, Event{Type: EventUpdated, OrderID: o.ID, Status: o.Status, At: now})
	return o, nil
}

// Delete removes an order. Deleting an unknown id returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete order %s", id)
	}

	s.publish(ctx, Event{Type: EventDeleted, OrderID: id, At: s.now().UTC()})
	return nil
}

// publish delivers an event without failing the operation that produced it.
func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(ev.Type)),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}

// validID accepts UUIDs and the 24-digit hex ObjectIds of orders placed
// through the Node backend.
func validID(id string) bool {
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	if len(id) != 24 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
