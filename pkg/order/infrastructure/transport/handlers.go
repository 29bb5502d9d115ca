package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"orderservice/pkg/order/domain/model"
	"orderservice/pkg/order/domain/service"
)

const maxBodyBytes = 1 << 20

type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

type handler struct {
	orders service.OrderService
	logger log.FieldLogger
}

// Router serves the orders API under /api/v1. metricsHandler is mounted on
// /metrics when not nil.
func Router(orders service.OrderService, logger log.FieldLogger, observer RequestObserver, metricsHandler http.Handler) http.Handler {
	h := &handler{orders: orders, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	s := r.PathPrefix("/api/v1").Subrouter()
	s.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	s.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	s.HandleFunc("/orders/{ID}", h.getOrder).Methods(http.MethodGet)
	s.HandleFunc("/orders/{ID}", h.changeStatus).Methods(http.MethodPatch)
	s.HandleFunc("/orders/{ID}", h.removeOrder).Methods(http.MethodDelete)

	if observer != nil {
		r.Use(metricsMiddleware(observer))
	}
	return logMiddleware(logger, r)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, invalidRequest("malformed request body"))
		return
	}

	view, err := h.orders.CreateOrder(r.Context(), req.toModel())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, fromView(view))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.orders.ListOrders(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fromPage(page))
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orders.FindOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fromView(view))
}

func (h *handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req changeStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, invalidRequest("malformed request body"))
		return
	}

	order, err := h.orders.ChangeOrderStatus(r.Context(), id, model.OrderStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fromOrder(order))
}

func (h *handler) removeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.orders.RemoveOrder(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["ID"])
	if err != nil {
		return uuid.Nil, invalidRequest("order id must be a uuid")
	}
	return id, nil
}

func parseListQuery(r *http.Request) (service.ListQuery, error) {
	values := r.URL.Query()
	query := service.ListQuery{
		Status: model.OrderStatus(strings.ToUpper(values.Get("status"))),
	}

	var err error
	if query.Page, err = intParam(values.Get("page"), "page"); err != nil {
		return query, err
	}
	if query.Limit, err = intParam(values.Get("limit"), "limit"); err != nil {
		return query, err
	}
	return query, nil
}

// intParam returns 0 for a missing value so the service applies its default.
func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, invalidRequest(name + " must be a positive integer")
	}
	return n, nil
}

func invalidRequest(detail string) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidRequest, detail)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)

	entry := h.logger.WithError(err).WithFields(log.Fields{
		"method": r.Method,
		"url":    r.URL.String(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	h.writeJSON(w, status, errorResponse{Status: status, Message: message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrOrderCreationFailed):
		return http.StatusBadRequest, "Check logs for more information"
	case errors.Is(err, model.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, model.ErrProductValidationFailed):
		return http.StatusBadGateway, "product catalog unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithField("err", err).Error("write response body")
	}
}
