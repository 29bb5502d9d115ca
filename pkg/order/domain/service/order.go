package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"orderservice/pkg/order/domain/model"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

type Event interface {
	Type() string
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

type OrderItemView struct {
	ProductID  uuid.UUID
	Quantity   int
	PriceCents int64
	Name       string
}

// OrderView is an order with product names merged into its items. Names are
// never stored, they come from the catalog on every read.
type OrderView struct {
	ID         uuid.UUID
	Status     model.OrderStatus
	TotalCents int64
	TotalItems int
	CreatedAt  time.Time
	Items      []OrderItemView
}

type ListQuery struct {
	Status model.OrderStatus
	Page   int
	Limit  int
}

type PageMeta struct {
	TotalRegisters int
	Page           int
	LastPage       int
}

type OrderPage struct {
	Data []model.Order
	Meta PageMeta
}

type OrderService interface {
	CreateOrder(ctx context.Context, items []model.RequestedItem) (*OrderView, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*OrderView, error)
	ListOrders(ctx context.Context, query ListQuery) (*OrderPage, error)
	ChangeOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
	RemoveOrder(ctx context.Context, id uuid.UUID) error
}

func NewOrderService(
	repo model.OrderRepository,
	catalog model.ProductCatalog,
	dispatcher EventDispatcher,
	logger logrus.FieldLogger,
) OrderService {
	return &orderService{repo: repo, catalog: catalog, dispatcher: dispatcher, logger: logger}
}

type orderService struct {
	repo       model.OrderRepository
	catalog    model.ProductCatalog
	dispatcher EventDispatcher
	logger     logrus.FieldLogger
}

func (s *orderService) CreateOrder(ctx context.Context, items []model.RequestedItem) (*OrderView, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	productIDs := distinctProductIDs(items)
	products, err := s.catalog.Validate(ctx, productIDs)
	if err != nil {
		return nil, s.creationFailed(catalogFailure(err))
	}

	priced, err := PriceItems(items, products)
	if err != nil {
		return nil, s.creationFailed(err)
	}

	order, err := s.newOrder(priced)
	if err != nil {
		return nil, s.creationFailed(fmt.Errorf("%w: %w", model.ErrStoreFailure, err))
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, s.creationFailed(fmt.Errorf("%w: %w", model.ErrStoreFailure, err))
	}

	s.dispatch(ctx, model.OrderCreated{
		OrderID:    order.ID,
		TotalCents: order.TotalCents,
		TotalItems: order.TotalItems,
		ProductIDs: productIDs,
	})

	return enrich(order, indexProducts(products)), nil
}

func (s *orderService) FindOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := s.findOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	products, err := s.catalog.Validate(ctx, orderProductIDs(order))
	if err == nil {
		err = missingProduct(order, products)
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("failed to enrich order with product data")
		return nil, catalogFailure(err)
	}

	return enrich(order, indexProducts(products)), nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListQuery) (*OrderPage, error) {
	if query.Page == 0 {
		query.Page = DefaultPage
	}
	if query.Limit == 0 {
		query.Limit = DefaultLimit
	}
	if query.Page < 0 || query.Limit < 0 {
		return nil, fmt.Errorf("%w: page and limit must be positive", model.ErrInvalidRequest)
	}
	if query.Status != "" && !query.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidRequest, query.Status)
	}

	total, err := s.repo.Count(ctx, query.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}

	orders, err := s.repo.Page(ctx, query.Status, query.Page, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}
	if orders == nil {
		orders = []model.Order{}
	}

	return &OrderPage{
		Data: orders,
		Meta: PageMeta{
			TotalRegisters: total,
			Page:           query.Page,
			LastPage:       lastPage(total, query.Limit),
		},
	}, nil
}

// ChangeOrderStatus does not check transition legality: any known status may
// follow any other.
func (s *orderService) ChangeOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidRequest, status)
	}

	current, err := s.findOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}

	s.dispatch(ctx, model.OrderStatusChanged{OrderID: id, OldStatus: current.Status, NewStatus: status})
	return updated, nil
}

func (s *orderService) RemoveOrder(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}

	s.dispatch(ctx, model.OrderRemoved{OrderID: id})
	return nil
}

func (s *orderService) findOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}
	return order, nil
}

func (s *orderService) newOrder(priced PricedOrder) (*model.Order, error) {
	orderID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		itemID, err := s.repo.NextID()
		if err != nil {
			return nil, err
		}
		items = append(items, model.Item{
			ID:         itemID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
		})
	}

	now := time.Now().UTC()
	return &model.Order{
		ID:         orderID,
		Status:     model.Pending,
		Items:      items,
		TotalCents: priced.TotalCents,
		TotalItems: priced.TotalItems,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// creationFailed logs the real cause; callers only get the generic kind plus
// the wrapped cause for errors.Is checks.
func (s *orderService) creationFailed(cause error) error {
	s.logger.WithError(cause).Error("order creation failed")
	return fmt.Errorf("%w: %w", model.ErrOrderCreationFailed, cause)
}

func (s *orderService) dispatch(ctx context.Context, event Event) {
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event", event.Type()).Error("failed to dispatch event")
	}
}

func catalogFailure(err error) error {
	if errors.Is(err, model.ErrProductValidationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrProductValidationFailed, err)
}

func validateItems(items []model.RequestedItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", model.ErrInvalidRequest)
	}
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("%w: item %d: product id is required", model.ErrInvalidRequest, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive, got %d", model.ErrInvalidRequest, i, item.Quantity)
		}
		if item.Quantity > model.MaxQuantity {
			return fmt.Errorf("%w: item %d: quantity must not exceed %d, got %d", model.ErrInvalidRequest, i, model.MaxQuantity, item.Quantity)
		}
	}
	return nil
}

func distinctProductIDs(items []model.RequestedItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func orderProductIDs(order *model.Order) []uuid.UUID {
	requested := make([]model.RequestedItem, 0, len(order.Items))
	for _, item := range order.Items {
		requested = append(requested, model.RequestedItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return distinctProductIDs(requested)
}

// missingProduct reports the first order item the catalog reply left out.
func missingProduct(order *model.Order, products []model.Product) error {
	index := indexProducts(products)
	for _, item := range order.Items {
		if _, ok := index[item.ProductID]; !ok {
			return fmt.Errorf("%w: %s", model.ErrUnknownProduct, item.ProductID)
		}
	}
	return nil
}

// enrich expects every item's product to be present in products.
func enrich(order *model.Order, products map[uuid.UUID]model.Product) *OrderView {
	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemView{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
			Name:       products[item.ProductID].Name,
		})
	}

	return &OrderView{
		ID:         order.ID,
		Status:     order.Status,
		TotalCents: order.TotalCents,
		TotalItems: order.TotalItems,
		CreatedAt:  order.CreatedAt,
		Items:      items,
	}
}

func lastPage(total, limit int) int {
	return (total + limit - 1) / limit
}
