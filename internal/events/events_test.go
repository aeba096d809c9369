package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xtrntr/marketplace/internal/orders"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failNext bool
	closed   bool
	block    chan struct{}
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext {
		w.failNext = false
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 16, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish([]byte("k"), []byte{byte(i)}))
	}
	require.NoError(t, p.Close(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.messages, 5)
	assert.True(t, w.closed)
}

func TestProducer_WriteErrorDoesNotStopLoop(t *testing.T) {
	w := &fakeWriter{failNext: true}
	p := NewProducerWithWriter(w, 4, nil)

	require.NoError(t, p.Publish([]byte("a"), []byte("1")))
	require.NoError(t, p.Publish([]byte("b"), []byte("2")))
	require.NoError(t, p.Close(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.messages, 1)
	assert.Equal(t, "b", string(w.messages[0].Key))
}

func TestProducer_PublishAfterClose(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, 1, nil)
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	assert.ErrorIs(t, p.Publish(nil, []byte("x")), ErrClosed)
}

func TestProducer_BufferFull(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{})}
	p := NewProducerWithWriter(w, 1, nil)

	// The first message is picked up by the loop and blocks in the writer;
	// the next one fills the buffer.
	require.NoError(t, p.Publish(nil, []byte("1")))
	assert.Eventually(t, func() bool {
		return p.Publish(nil, []byte("2")) == nil
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, p.Publish(nil, []byte("3")), ErrBufferFull)

	close(w.block)
	require.NoError(t, p.Close(context.Background()))
}

type recordingPublisher struct {
	key     []byte
	value   []byte
	headers []kafka.Header
	err     error
}

func (r *recordingPublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	r.key, r.value, r.headers = key, value, headers
	return r.err
}

func TestOrderEvents_Envelope(t *testing.T) {
	pub := &recordingPublisher{}
	listener := NewOrderEvents(pub, "marketplace-api")
	placedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")

	err := listener.OrderPlaced(ctx, orders.OrderPlaced{
		OrderID:     12,
		BuyerID:     3,
		TotalAmount: decimal.RequireFromString("20.00"),
		PlacedAt:    placedAt,
		Lines: []orders.PlacedLine{
			{ProductID: 1, SellerID: 2, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "12", string(pub.key))
	require.Len(t, pub.headers, 2)
	assert.Equal(t, EventOrderPlaced, string(pub.headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.value, &env))
	assert.Equal(t, EventOrderPlaced, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "marketplace-api", env.Producer)
	assert.Equal(t, "req-1", env.TraceID)
	assert.Equal(t, "12", env.CorrelationID)
	assert.True(t, env.OccurredAt.Equal(placedAt))
	assert.NotEmpty(t, env.EventID)

	var payload OrderPlacedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 12, payload.OrderID)
	assert.True(t, payload.TotalAmount.Equal(decimal.RequireFromString("20")))
	require.Len(t, payload.Items, 1)
	assert.Equal(t, 2, payload.Items[0].SellerID)
}

func TestOrderEvents_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: ErrBufferFull}
	listener := NewOrderEvents(pub, "svc")

	err := listener.OrderPlaced(context.Background(), orders.OrderPlaced{OrderID: 1})

	assert.ErrorIs(t, err, ErrBufferFull)
}
