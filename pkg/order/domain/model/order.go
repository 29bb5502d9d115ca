package model

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderCreationFailed     = errors.New("order creation failed")
	ErrProductValidationFailed = errors.New("product validation failed")
	ErrUnknownProduct          = errors.New("unknown product")
	ErrStoreFailure            = errors.New("order store failure")
	ErrAmountOutOfRange        = errors.New("order amount out of range")
)

// MaxQuantity bounds item quantities and order item totals to the INT columns
// they are stored in.
const MaxQuantity = math.MaxInt32

type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Paid      OrderStatus = "PAID"
	Delivered OrderStatus = "DELIVERED"
	Cancelled OrderStatus = "CANCELLED"
)

var OrderStatuses = []OrderStatus{Pending, Paid, Delivered, Cancelled}

func (s OrderStatus) Valid() bool {
	for _, status := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type Order struct {
	ID         uuid.UUID
	Status     OrderStatus
	Items      []Item
	TotalCents int64
	TotalItems int
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Item keeps the unit price captured when the order was created.
type Item struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	PriceCents int64
}

// OrderRepository treats an empty status as "any status" in Count and Page.
type OrderRepository interface {
	NextID() (uuid.UUID, error)
	Create(ctx context.Context, order *Order) error
	Find(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus) (*Order, error)
	Count(ctx context.Context, status OrderStatus) (int, error)
	Page(ctx context.Context, status OrderStatus, page, limit int) ([]Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
