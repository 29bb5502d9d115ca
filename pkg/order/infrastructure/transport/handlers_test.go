package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderservice/pkg/order/domain/model"
	"orderservice/pkg/order/domain/service"
)

type stubOrderService struct {
	view  *service.OrderView
	page  *service.OrderPage
	order *model.Order
	err   error

	createdItems []model.RequestedItem
	listQuery    service.ListQuery
	status       model.OrderStatus
	removedID    uuid.UUID
}

func (s *stubOrderService) CreateOrder(_ context.Context, items []model.RequestedItem) (*service.OrderView, error) {
	s.createdItems = items
	return s.view, s.err
}

func (s *stubOrderService) FindOrder(context.Context, uuid.UUID) (*service.OrderView, error) {
	return s.view, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, query service.ListQuery) (*service.OrderPage, error) {
	s.listQuery = query
	return s.page, s.err
}

func (s *stubOrderService) ChangeOrderStatus(_ context.Context, _ uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	s.status = status
	return s.order, s.err
}

func (s *stubOrderService) RemoveOrder(_ context.Context, id uuid.UUID) error {
	s.removedID = id
	return s.err
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
}

func (o *recordingObserver) ObserveRequest(route, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, fmt.Sprintf("%s %s %d", method, route, status))
}

func serve(t *testing.T, orders service.OrderService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	router := Router(orders, logger, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateOrderHandler(t *testing.T) {
	productID := uuid.New()
	view := &service.OrderView{
		ID:         uuid.New(),
		Status:     model.Pending,
		TotalCents: 9998,
		TotalItems: 2,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Items: []service.OrderItemView{
			{ProductID: productID, Quantity: 2, PriceCents: 4999, Name: "Keyboard"},
		},
	}

	t.Run("Created", func(t *testing.T) {
		orders := &stubOrderService{view: view}

		rec := serve(t, orders, http.MethodPost, "/api/v1/orders",
			`{"items":[{"productId":"`+productID.String()+`","quantity":2}]}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, []model.RequestedItem{{ProductID: productID, Quantity: 2}}, orders.createdItems)
		assert.Contains(t, rec.Body.String(), `"totalAmount":99.98`)
		assert.Contains(t, rec.Body.String(), `"price":49.99`)

		body := decode(t, rec)
		assert.Equal(t, "PENDING", body["status"])
		items := body["items"].([]interface{})
		require.Len(t, items, 1)
		assert.Equal(t, "Keyboard", items[0].(map[string]interface{})["name"])
	})

	t.Run("Malformed body", func(t *testing.T) {
		rec := serve(t, &stubOrderService{}, http.MethodPost, "/api/v1/orders", `{"items":[{"productId":"nope"}]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Oversized body", func(t *testing.T) {
		orders := &stubOrderService{view: view}
		item := `{"productId":"` + productID.String() + `","quantity":1},`
		body := `{"items":[` + strings.Repeat(item, maxBodyBytes/len(item)+1) + `{"productId":"` + productID.String() + `","quantity":1}]}`

		rec := serve(t, orders, http.MethodPost, "/api/v1/orders", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, orders.createdItems)
	})

	t.Run("Creation failure hides the cause", func(t *testing.T) {
		orders := &stubOrderService{
			err: fmt.Errorf("%w: %w", model.ErrOrderCreationFailed,
				fmt.Errorf("%w: timeout", model.ErrProductValidationFailed)),
		}

		rec := serve(t, orders, http.MethodPost, "/api/v1/orders",
			`{"items":[{"productId":"`+productID.String()+`","quantity":1}]}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, float64(http.StatusBadRequest), body["status"])
		assert.Equal(t, "Check logs for more information", body["message"])
	})
}

func TestGetOrderHandler(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		target  string
		err     error
		code    int
		message string
	}{
		{name: "found", target: "/api/v1/orders/" + id.String(), code: http.StatusOK},
		{name: "not a uuid", target: "/api/v1/orders/42", code: http.StatusBadRequest},
		{name: "not found", target: "/api/v1/orders/" + id.String(), err: model.ErrOrderNotFound, code: http.StatusNotFound, message: "Order not found"},
		{
			name:    "catalog down",
			target:  "/api/v1/orders/" + id.String(),
			err:     fmt.Errorf("%w: timeout", model.ErrProductValidationFailed),
			code:    http.StatusBadGateway,
			message: "product catalog unavailable",
		},
		{
			name:    "store failure",
			target:  "/api/v1/orders/" + id.String(),
			err:     fmt.Errorf("%w: connection refused", model.ErrStoreFailure),
			code:    http.StatusInternalServerError,
			message: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &stubOrderService{
				view: &service.OrderView{ID: id, Status: model.Paid, Items: []service.OrderItemView{}},
				err:  tt.err,
			}

			rec := serve(t, orders, http.MethodGet, tt.target, "")

			require.Equal(t, tt.code, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decode(t, rec)["message"])
			}
		})
	}
}

func TestListOrdersHandler(t *testing.T) {
	t.Run("Passes query and renders meta", func(t *testing.T) {
		orders := &stubOrderService{page: &service.OrderPage{
			Data: []model.Order{{ID: uuid.New(), Status: model.Paid, TotalCents: 100, TotalItems: 1}},
			Meta: service.PageMeta{TotalRegisters: 25, Page: 3, LastPage: 3},
		}}

		rec := serve(t, orders, http.MethodGet, "/api/v1/orders?status=paid&page=3&limit=10", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.ListQuery{Status: model.Paid, Page: 3, Limit: 10}, orders.listQuery)
		body := decode(t, rec)
		assert.Equal(t, map[string]interface{}{
			"totalRegisters": float64(25),
			"page":           float64(3),
			"lastPage":       float64(3),
		}, body["meta"])
		data := body["data"].([]interface{})
		require.Len(t, data, 1)
		assert.NotContains(t, data[0], "items")
	})

	t.Run("Defaults are left to the service", func(t *testing.T) {
		orders := &stubOrderService{page: &service.OrderPage{Data: []model.Order{}}}

		rec := serve(t, orders, http.MethodGet, "/api/v1/orders", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.ListQuery{}, orders.listQuery)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
	})

	t.Run("Bad paging", func(t *testing.T) {
		for _, target := range []string{"/api/v1/orders?page=0", "/api/v1/orders?limit=-1", "/api/v1/orders?page=abc"} {
			rec := serve(t, &stubOrderService{}, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
	})
}

func TestChangeStatusHandler(t *testing.T) {
	id := uuid.New()

	t.Run("Updated", func(t *testing.T) {
		orders := &stubOrderService{order: &model.Order{ID: id, Status: model.Delivered, TotalCents: 1550}}

		rec := serve(t, orders, http.MethodPatch, "/api/v1/orders/"+id.String(), `{"status":"delivered"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.Delivered, orders.status)
		assert.Equal(t, "DELIVERED", decode(t, rec)["status"])
	})

	t.Run("Invalid status", func(t *testing.T) {
		orders := &stubOrderService{err: fmt.Errorf("%w: unknown status %q", model.ErrInvalidRequest, "LOST")}

		rec := serve(t, orders, http.MethodPatch, "/api/v1/orders/"+id.String(), `{"status":"lost"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["message"], "unknown status")
	})
}

func TestRemoveOrderHandler(t *testing.T) {
	id := uuid.New()

	t.Run("Removed", func(t *testing.T) {
		orders := &stubOrderService{}

		rec := serve(t, orders, http.MethodDelete, "/api/v1/orders/"+id.String(), "")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, id, orders.removedID)
	})

	t.Run("Not found", func(t *testing.T) {
		rec := serve(t, &stubOrderService{err: model.ErrOrderNotFound}, http.MethodDelete, "/api/v1/orders/"+id.String(), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouterInfrastructureEndpoints(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	observer := &recordingObserver{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})
	id := uuid.New()
	router := Router(&stubOrderService{err: model.ErrOrderNotFound}, logger, observer, metricsHandler)

	for _, target := range []string{"/healthz", "/metrics", "/api/v1/orders/" + id.String()} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.Equal(t, []string{
		"GET /healthz 200",
		"GET /metrics 200",
		"GET /api/v1/orders/{ID} 404",
	}, observer.routes)
	assert.NotEmpty(t, hook.AllEntries())
}
