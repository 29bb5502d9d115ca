package tests

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"orderservice/pkg/order/domain/model"
	"orderservice/pkg/order/domain/service"
)

var _ model.OrderRepository = &mockOrderRepository{}

type mockOrderRepository struct {
	store     map[uuid.UUID]*model.Order
	writes    int
	createErr error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{store: make(map[uuid.UUID]*model.Order)}
}

func (m *mockOrderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (m *mockOrderRepository) Create(_ context.Context, order *model.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.store[order.ID]; exists {
		return errors.New("order with this ID already exists")
	}
	m.writes++
	m.store[order.ID] = cloneOrder(order)
	return nil
}

func (m *mockOrderRepository) Find(_ context.Context, id uuid.UUID) (*model.Order, error) {
	if order, ok := m.store[id]; ok && order.DeletedAt == nil {
		return cloneOrder(order), nil
	}
	return nil, model.ErrOrderNotFound
}

func (m *mockOrderRepository) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	order, ok := m.store[id]
	if !ok || order.DeletedAt != nil {
		return nil, model.ErrOrderNotFound
	}
	m.writes++
	order.Status = status
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	return cloneOrder(order), nil
}

func (m *mockOrderRepository) Count(_ context.Context, status model.OrderStatus) (int, error) {
	return len(m.filtered(status)), nil
}

func (m *mockOrderRepository) Page(_ context.Context, status model.OrderStatus, page, limit int) ([]model.Order, error) {
	orders := m.filtered(status)
	offset := (page - 1) * limit
	if offset >= len(orders) {
		return nil, nil
	}
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], nil
}

func (m *mockOrderRepository) Delete(_ context.Context, id uuid.UUID) error {
	order, ok := m.store[id]
	if !ok || order.DeletedAt != nil {
		return model.ErrOrderNotFound
	}
	m.writes++
	now := time.Now().UTC()
	order.DeletedAt = &now
	return nil
}

func (m *mockOrderRepository) filtered(status model.OrderStatus) []model.Order {
	orders := make([]model.Order, 0, len(m.store))
	for _, order := range m.store {
		if order.DeletedAt != nil {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		header := *order
		header.Items = nil
		orders = append(orders, header)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID.String() < orders[j].ID.String()
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders
}

func cloneOrder(order *model.Order) *model.Order {
	clone := *order
	clone.Items = append([]model.Item(nil), order.Items...)
	return &clone
}

var _ model.ProductCatalog = &mockProductCatalog{}

type mockProductCatalog struct {
	products map[uuid.UUID]model.Product
	err      error
	calls    [][]uuid.UUID
}

func newMockProductCatalog(products ...model.Product) *mockProductCatalog {
	catalog := &mockProductCatalog{products: make(map[uuid.UUID]model.Product)}
	for _, product := range products {
		catalog.products[product.ID] = product
	}
	return catalog
}

// Validate returns only the products it knows about, like a catalog that
// silently drops unknown ids.
func (m *mockProductCatalog) Validate(_ context.Context, ids []uuid.UUID) ([]model.Product, error) {
	m.calls = append(m.calls, append([]uuid.UUID(nil), ids...))
	if m.err != nil {
		return nil, m.err
	}
	products := make([]model.Product, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if product, ok := m.products[ids[i]]; ok {
			products = append(products, product)
		}
	}
	return products, nil
}

var _ service.EventDispatcher = &mockEventDispatcher{}

type mockEventDispatcher struct {
	events []service.Event
	err    error
}

func (m *mockEventDispatcher) Dispatch(_ context.Context, event service.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.events = nil
}
