package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/chronos-shop/internal/domain/order"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{exchange: DefaultExchange, ch: ch}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), order.Event{
		Type:    order.EventStatusChanged,
		OrderID: "0195536c-1c00-7000-8000-000000000001",
		Status:  order.StatusShipped,
		At:      at,
	})
	require.NoError(t, err)

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "order.status_changed", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.JSONEq(t,
		`{"type":"order.status_changed","orderId":"0195536c-1c00-7000-8000-000000000001","status":"Shipped","at":"2025-03-01T12:00:00Z"}`,
		string(got.msg.Body),
	)
}

func TestPublish_DeletedOmitsStatus(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{exchange: DefaultExchange, ch: ch}

	require.NoError(t, p.Publish(context.Background(), order.Event{
		Type:    order.EventDeleted,
		OrderID: "x",
		At:      time.Unix(0, 0),
	}))
	assert.JSONEq(t, `{"type":"order.deleted","orderId":"x","at":"1970-01-01T00:00:00Z"}`, string(ch.sent[0].msg.Body))
}

func TestPublish_Error(t *testing.T) {
	p := &Publisher{exchange: DefaultExchange, ch: &fakeChannel{err: amqp.ErrClosed}}

	err := p.Publish(context.Background(), order.Event{Type: order.EventCreated, OrderID: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestPublish_ReopensClosedChannel(t *testing.T) {
	stale := &fakeChannel{err: amqp.ErrClosed}
	fresh := &fakeChannel{}
	errUnroutable := errors.New("unroutable")

	tests := []struct {
		name       string
		first      error
		reopenErr  error
		wantErr    error
		wantReopen int
	}{
		{name: "reopened", first: amqp.ErrClosed, wantReopen: 1},
		{name: "reopen fails", first: amqp.ErrClosed, reopenErr: amqp.ErrClosed, wantErr: amqp.ErrClosed, wantReopen: 1},
		{name: "other errors are not retried", first: errUnroutable, wantErr: errUnroutable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*stale = fakeChannel{err: tt.first}
			*fresh = fakeChannel{}
			reopened := 0
			p := &Publisher{
				exchange: DefaultExchange,
				ch:       stale,
				reopen: func() (channel, error) {
					reopened++
					if tt.reopenErr != nil {
						return nil, tt.reopenErr
					}
					return fresh, nil
				},
			}

			err := p.Publish(context.Background(), order.Event{Type: order.EventCreated, OrderID: "x"})
			assert.Equal(t, tt.wantReopen, reopened)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, fresh.sent)
				return
			}
			require.NoError(t, err)
			assert.True(t, stale.closed)
			require.Len(t, fresh.sent, 1)
			assert.Equal(t, "order.created", fresh.sent[0].key)

			// Later publishes go straight to the new channel.
			require.NoError(t, p.Publish(context.Background(), order.Event{Type: order.EventDeleted, OrderID: "x"}))
			assert.Len(t, fresh.sent, 2)
			assert.Equal(t, 1, reopened)
		})
	}
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
