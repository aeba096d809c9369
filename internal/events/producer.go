// Package events publishes committed orders to Kafka.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("producer closed")
	ErrBufferFull = errors.New("producer buffer full")
)

// Writer is the part of *kafka.Writer the producer uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer hands messages to a background writer so that publishing never
// blocks the caller. Close flushes what is buffered.
type Producer struct {
	w            Writer
	inbox        chan kafka.Message
	done         chan struct{}
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewProducer writes to topic on brokers, keyed by the message key
func NewProducer(brokers []string, topic string, buf int, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewProducerWithWriter(w, buf, logger)
}

// NewProducerWithWriter starts a producer on an existing writer
func NewProducerWithWriter(w Writer, buf int, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		w:            w,
		inbox:        make(chan kafka.Message, buf),
		done:         make(chan struct{}),
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
	go p.loop()
	return p
}

func (p *Producer) loop() {
	defer close(p.done)
	for m := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		if err := p.w.WriteMessages(ctx, m); err != nil {
			p.logger.Error("kafka write failed",
				zap.String("key", string(m.Key)),
				zap.Error(err))
		}
		cancel()
	}
	if err := p.w.Close(); err != nil {
		p.logger.Warn("kafka writer close failed", zap.Error(err))
	}
}

// Publish enqueues a message. It fails instead of blocking when the buffer is full.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages and waits until the buffer is written
// or ctx expires
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
