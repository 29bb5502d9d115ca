package model

import (
	"context"

	"github.com/google/uuid"
)

// Product is owned by the catalog service. Orders only keep its id and a
// price snapshot; the name is fetched on every read.
type Product struct {
	ID         uuid.UUID
	Name       string
	PriceCents int64
}

type RequestedItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// ProductCatalog resolves product ids in one round trip. The result order is
// not tied to the input order. Failures wrap ErrProductValidationFailed.
type ProductCatalog interface {
	Validate(ctx context.Context, ids []uuid.UUID) ([]Product, error)
}
