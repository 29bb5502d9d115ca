package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"orderservice/pkg/order/domain/service"
)

type EventObserver interface {
	ObserveEvent(eventType string, err error)
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends domain events to a topic exchange, routed by event type.
// amqp channels are not safe for concurrent publishing, so writes are serialised.
// A channel closed by the broker is reopened on the next publish.
type Publisher struct {
	mu       sync.Mutex
	open     func() (channel, <-chan *amqp.Error, error)
	ch       channel
	closed   <-chan *amqp.Error
	exchange string
	observer EventObserver
}

func NewPublisher(conn *amqp.Connection, exchange string, observer EventObserver) (*Publisher, error) {
	p := &Publisher{
		open: func() (channel, <-chan *amqp.Error, error) {
			ch, err := conn.Channel()
			if err != nil {
				return nil, nil, errors.Wrap(err, "failed to open events channel")
			}
			err = ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
			if err != nil {
				_ = ch.Close()
				return nil, nil, errors.Wrapf(err, "failed to declare exchange %s", exchange)
			}
			return ch, ch.NotifyClose(make(chan *amqp.Error, 1)), nil
		},
		exchange: exchange,
		observer: observer,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.acquire(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Dispatch(ctx context.Context, event service.Event) error {
	err := p.publish(ctx, event)
	if p.observer != nil {
		p.observer.ObserveEvent(event.Type(), err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, event service.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", event.Type())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.acquire()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, event.Type(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         event.Type(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.release()
		return errors.Wrapf(err, "failed to publish %s", event.Type())
	}
	return nil
}

// acquire returns the live channel, reopening it when the broker closed it.
// Callers hold mu.
func (p *Publisher) acquire() (channel, error) {
	if p.ch != nil {
		select {
		case <-p.closed:
			p.ch, p.closed = nil, nil
		default:
			return p.ch, nil
		}
	}

	ch, closed, err := p.open()
	if err != nil {
		return nil, err
	}
	p.ch, p.closed = ch, closed
	return ch, nil
}

func (p *Publisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.ch, p.closed = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch, p.closed = nil, nil
	return err
}

// LogDispatcher only writes events to the log. Used when no exchange is configured.
type LogDispatcher struct {
	Logger logrus.FieldLogger
}

func (d LogDispatcher) Dispatch(_ context.Context, event service.Event) error {
	d.Logger.WithFields(logrus.Fields{
		"event":   event.Type(),
		"payload": event,
	}).Info("domain event")
	return nil
}
