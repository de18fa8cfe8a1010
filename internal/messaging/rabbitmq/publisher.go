// Package rabbitmq publishes order lifecycle events to a topic exchange.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/chronos-shop/internal/domain/order"
)

// DefaultExchange is used when no exchange name is configured.
const DefaultExchange = "chronos.orders"

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher implements order.Publisher. The routing key of every message is
// the event type, e.g. "order.created".
//
// A publish that finds the channel closed reopens it once, redialing the
// broker if the connection is gone too, and retries. Nothing is buffered
// while the broker is down.
type Publisher struct {
	url      string
	conn     *amqp.Connection
	exchange string

	mu     sync.Mutex
	ch     channel
	reopen func() (channel, error)
}

// Dial connects to the broker at url and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := openChannel(conn, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p := &Publisher{url: url, conn: conn, exchange: exchange, ch: ch}
	p.reopen = p.redial
	return p, nil
}

func openChannel(conn *amqp.Connection, exchange string) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}
	return ch, nil
}

// redial must be called with p.mu held.
func (p *Publisher) redial() (channel, error) {
	if p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("reconnecting to broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := openChannel(p.conn, p.exchange)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev order.Event) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		MessageId:    ev.OrderID,
		Type:         string(ev.Type),
		Body:         encodeEvent(ev),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && p.reopen != nil {
		ch, rerr := p.reopen()
		if rerr != nil {
			return fmt.Errorf("publishing %s for order %q: %w", ev.Type, ev.OrderID, errors.Join(err, rerr))
		}
		_ = p.ch.Close()
		p.ch = ch
		err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("publishing %s for order %q: %w", ev.Type, ev.OrderID, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func encodeEvent(ev order.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(ev.Type))
	e.FieldStart("orderId")
	e.Str(ev.OrderID)
	if ev.Status != "" {
		e.FieldStart("status")
		e.Str(string(ev.Status))
	}
	e.FieldStart("at")
	e.Str(ev.At.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}
