package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/marketplace/internal/orders"
)

const (
	EventOrderPlaced   = "OrderPlaced"
	orderPlacedVersion = 1
	headerEventType    = "x-event-type"
	headerEventVersion = "x-event-version"
)

// Envelope wraps every published payload
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderItem is one line of an OrderPlaced payload
type OrderItem struct {
	ProductID int             `json:"product_id"`
	SellerID  int             `json:"seller_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlacedPayload is the body of an OrderPlaced event
type OrderPlacedPayload struct {
	OrderID     int             `json:"order_id"`
	BuyerID     int             `json:"buyer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items"`
}

// Publisher accepts encoded messages
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// OrderEvents turns committed orders into OrderPlaced events
type OrderEvents struct {
	pub     Publisher
	service string
}

// NewOrderEvents publishes through pub, naming service as the producer
func NewOrderEvents(pub Publisher, service string) *OrderEvents {
	return &OrderEvents{pub: pub, service: service}
}

// OrderPlaced implements orders.Listener
func (e *OrderEvents) OrderPlaced(ctx context.Context, event orders.OrderPlaced) error {
	payload := OrderPlacedPayload{
		OrderID:     event.OrderID,
		BuyerID:     event.BuyerID,
		TotalAmount: event.TotalAmount,
		Items:       make([]OrderItem, 0, len(event.Lines)),
	}
	for _, l := range event.Lines {
		payload.Items = append(payload.Items, OrderItem{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	orderKey := strconv.Itoa(event.OrderID)
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderPlaced,
		EventVersion:  orderPlacedVersion,
		OccurredAt:    event.PlacedAt.UTC(),
		Producer:      e.service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: orderKey,
		Payload:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	err = e.pub.Publish([]byte(orderKey), value,
		kafka.Header{Key: headerEventType, Value: []byte(EventOrderPlaced)},
		kafka.Header{Key: headerEventVersion, Value: []byte(strconv.Itoa(orderPlacedVersion))},
	)
	if err != nil {
		return fmt.Errorf("failed to publish order %d: %w", event.OrderID, err)
	}
	return nil
}
