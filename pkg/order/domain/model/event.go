package model

import "github.com/google/uuid"

type OrderCreated struct {
	OrderID    uuid.UUID   `json:"orderId"`
	TotalCents int64       `json:"totalCents"`
	TotalItems int         `json:"totalItems"`
	ProductIDs []uuid.UUID `json:"productIds"`
}

func (e OrderCreated) Type() string { return "OrderCreated" }

type OrderStatusChanged struct {
	OrderID   uuid.UUID   `json:"orderId"`
	OldStatus OrderStatus `json:"oldStatus"`
	NewStatus OrderStatus `json:"newStatus"`
}

func (e OrderStatusChanged) Type() string { return "OrderStatusChanged" }

type OrderRemoved struct {
	OrderID uuid.UUID `json:"orderId"`
}

func (e OrderRemoved) Type() string { return "OrderRemoved" }
