package service

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"orderservice/pkg/order/domain/model"
)

type PricedLine struct {
	ProductID  uuid.UUID
	Quantity   int
	PriceCents int64
}

type PricedOrder struct {
	Lines      []PricedLine
	TotalCents int64
	TotalItems int
}

// PriceItems prices every requested item with the matching catalog product.
// Any item without a product fails the whole order with ErrUnknownProduct.
// Quantities and prices must be non-negative; totals that do not fit their
// columns fail with ErrAmountOutOfRange.
func PriceItems(items []model.RequestedItem, products []model.Product) (PricedOrder, error) {
	catalog := indexProducts(products)

	priced := PricedOrder{Lines: make([]PricedLine, 0, len(items))}
	for _, item := range items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return PricedOrder{}, fmt.Errorf("%w: %s", model.ErrUnknownProduct, item.ProductID)
		}

		lineCents, ok := mulCents(product.PriceCents, item.Quantity)
		if !ok || priced.TotalCents > math.MaxInt64-lineCents {
			return PricedOrder{}, fmt.Errorf("%w: total price exceeds %d cents", model.ErrAmountOutOfRange, int64(math.MaxInt64))
		}
		if item.Quantity > model.MaxQuantity-priced.TotalItems {
			return PricedOrder{}, fmt.Errorf("%w: total items exceed %d", model.ErrAmountOutOfRange, model.MaxQuantity)
		}

		priced.Lines = append(priced.Lines, PricedLine{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: product.PriceCents,
		})
		priced.TotalCents += lineCents
		priced.TotalItems += item.Quantity
	}

	return priced, nil
}

func mulCents(priceCents int64, quantity int) (int64, bool) {
	if priceCents < 0 || quantity < 0 {
		return 0, false
	}
	if priceCents != 0 && int64(quantity) > math.MaxInt64/priceCents {
		return 0, false
	}
	return priceCents * int64(quantity), true
}

func indexProducts(products []model.Product) map[uuid.UUID]model.Product {
	index := make(map[uuid.UUID]model.Product, len(products))
	for _, product := range products {
		index[product.ID] = product
	}
	return index
}
