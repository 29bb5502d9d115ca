package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"orderservice/pkg/order/domain/model"
)

const (
	validateCommand = "validate_product"
	// RabbitMQ pseudo-queue; replies arrive on the channel that consumed it.
	directReplyTo = "amq.rabbitmq.reply-to"
)

var maxCents = decimal.NewFromInt(math.MaxInt64)

type CallObserver interface {
	ObserveCatalogCall(err error, elapsed time.Duration)
}

type channel interface {
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Client validates products with one request/reply round trip per call.
// It implements model.ProductCatalog.
type Client struct {
	open     func() (channel, error)
	queue    string
	timeout  time.Duration
	observer CallObserver
}

func NewClient(conn *amqp.Connection, queue string, timeout time.Duration, observer CallObserver) *Client {
	return &Client{
		open: func() (channel, error) {
			return conn.Channel()
		},
		queue:    queue,
		timeout:  timeout,
		observer: observer,
	}
}

func (c *Client) Validate(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	start := time.Now()
	products, err := c.call(ctx, ids)
	if c.observer != nil {
		c.observer.ObserveCatalogCall(err, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProductValidationFailed, err)
	}
	return products, nil
}

func (c *Client) call(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := encodeRequest(ids)
	if err != nil {
		return nil, err
	}

	// A channel per call keeps concurrent callers off each other's reply consumer.
	ch, err := c.open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open channel")
	}
	defer ch.Close()

	replies, err := ch.ConsumeWithContext(ctx, directReplyTo, "", true, true, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to consume replies")
	}

	correlationID := uuid.NewString()
	err = ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       directReplyTo,
		Expiration:    strconv.FormatInt(c.timeout.Milliseconds(), 10),
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to publish %s request", validateCommand)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "no reply to %s within %s", validateCommand, c.timeout)
		case d, ok := <-replies:
			if !ok {
				return nil, errors.New("reply channel closed")
			}
			if d.CorrelationId != correlationID {
				continue
			}
			return decodeReply(d.Body)
		}
	}
}

type validateRequest struct {
	Cmd string      `json:"cmd"`
	IDs []uuid.UUID `json:"ids"`
}

type validateReply struct {
	Products []productBody `json:"products"`
	Error    *replyError   `json:"error,omitempty"`
}

type productBody struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type replyError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// encodeRequest sends each id once even when the caller repeats it.
func encodeRequest(ids []uuid.UUID) ([]byte, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	distinct := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	body, err := json.Marshal(validateRequest{Cmd: validateCommand, IDs: distinct})
	return body, errors.Wrap(err, "failed to encode request")
}

func decodeReply(body []byte) ([]model.Product, error) {
	var reply validateReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errors.Wrap(err, "malformed catalog reply")
	}
	if reply.Error != nil {
		return nil, errors.Errorf("catalog replied %d: %s", reply.Error.Status, reply.Error.Message)
	}

	products := make([]model.Product, 0, len(reply.Products))
	for _, p := range reply.Products {
		cents, err := toCents(p.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s", p.ID)
		}
		products = append(products, model.Product{ID: p.ID, Name: p.Name, PriceCents: cents})
	}
	return products, nil
}

func toCents(price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, errors.Errorf("negative price %s", price)
	}
	cents := price.Shift(2)
	if !cents.IsInteger() {
		return 0, errors.Errorf("price %s has more than two decimal places", price)
	}
	if cents.GreaterThan(maxCents) {
		return 0, errors.Errorf("price %s is out of range", price)
	}
	return cents.IntPart(), nil
}
