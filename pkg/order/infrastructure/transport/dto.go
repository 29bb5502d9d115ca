package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orderservice/pkg/order/domain/model"
	"orderservice/pkg/order/domain/service"
)

type createOrderRequest struct {
	Items []createItemRequest `json:"items"`
}

type createItemRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type changeStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

type orderItemResponse struct {
	ProductID uuid.UUID   `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
	Name      string      `json:"name"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	Status      model.OrderStatus   `json:"status"`
	TotalAmount json.Number         `json:"totalAmount"`
	TotalItems  int                 `json:"totalItems"`
	CreatedAt   time.Time           `json:"createdAt"`
	Items       []orderItemResponse `json:"items,omitempty"`
}

type pageMetaResponse struct {
	TotalRegisters int `json:"totalRegisters"`
	Page           int `json:"page"`
	LastPage       int `json:"lastPage"`
}

type orderPageResponse struct {
	Data []orderResponse  `json:"data"`
	Meta pageMetaResponse `json:"meta"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (r createOrderRequest) toModel() []model.RequestedItem {
	items := make([]model.RequestedItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, model.RequestedItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return items
}

func fromView(view *service.OrderView) orderResponse {
	items := make([]orderItemResponse, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     amount(item.PriceCents),
			Name:      item.Name,
		})
	}

	return orderResponse{
		ID:          view.ID,
		Status:      view.Status,
		TotalAmount: amount(view.TotalCents),
		TotalItems:  view.TotalItems,
		CreatedAt:   view.CreatedAt,
		Items:       items,
	}
}

func fromOrder(order *model.Order) orderResponse {
	return orderResponse{
		ID:          order.ID,
		Status:      order.Status,
		TotalAmount: amount(order.TotalCents),
		TotalItems:  order.TotalItems,
		CreatedAt:   order.CreatedAt,
	}
}

func fromPage(page *service.OrderPage) orderPageResponse {
	data := make([]orderResponse, 0, len(page.Data))
	for i := range page.Data {
		data = append(data, fromOrder(&page.Data[i]))
	}

	return orderPageResponse{
		Data: data,
		Meta: pageMetaResponse{
			TotalRegisters: page.Meta.TotalRegisters,
			Page:           page.Meta.Page,
			LastPage:       page.Meta.LastPage,
		},
	}
}

// amount renders cents as a JSON number with exactly two decimals.
func amount(cents int64) json.Number {
	return json.Number(decimal.New(cents, -2).StringFixed(2))
}
