// Package orders places orders atomically and serves the buyer and seller
// views over committed orders.
package orders

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

const (
	// MaxItemsPerOrder bounds the number of lines in one request
	MaxItemsPerOrder = 100
	// MaxItemQuantity is the largest quantity the quantity columns can hold
	MaxItemQuantity = math.MaxInt32
)

// PlacedLine is one committed line item together with the owning seller
type PlacedLine struct {
	ProductID int
	SellerID  int
	Quantity  int
	UnitPrice decimal.Decimal
}

// OrderPlaced describes a committed order
type OrderPlaced struct {
	OrderID     int
	BuyerID     int
	TotalAmount decimal.Decimal
	PlacedAt    time.Time
	Lines       []PlacedLine
}

// SellerIDs returns the distinct sellers touched by the order in line order
func (e OrderPlaced) SellerIDs() []int {
	seen := make(map[int]bool, len(e.Lines))
	ids := make([]int, 0, len(e.Lines))
	for _, l := range e.Lines {
		if !seen[l.SellerID] {
			seen[l.SellerID] = true
			ids = append(ids, l.SellerID)
		}
	}
	return ids
}

// ProductIDs returns the distinct products touched by the order in line order
func (e OrderPlaced) ProductIDs() []int {
	seen := make(map[int]bool, len(e.Lines))
	ids := make([]int, 0, len(e.Lines))
	for _, l := range e.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// Listener is told about every committed order. Errors are logged only;
// the order stays committed.
type Listener interface {
	OrderPlaced(ctx context.Context, event OrderPlaced) error
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, event OrderPlaced) error

func (f ListenerFunc) OrderPlaced(ctx context.Context, event OrderPlaced) error {
	return f(ctx, event)
}

// Coordinator runs PlaceOrder as a single unit of work
type Coordinator struct {
	store     store.Transactor
	logger    *zap.Logger
	listeners []Listener
	now       func() time.Time
}

// NewCoordinator creates a coordinator over the given transactor
func NewCoordinator(tx store.Transactor, logger *zap.Logger, listeners ...Listener) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: tx, logger: logger, listeners: listeners, now: time.Now}
}

// Subscribe adds a listener. It must be called before the coordinator is shared.
func (c *Coordinator) Subscribe(l Listener) {
	c.listeners = append(c.listeners, l)
}

// ValidateItems checks the shape of a request without touching storage
func ValidateItems(items []models.ItemRequest) error {
	if len(items) == 0 {
		return invalid("items must not be empty")
	}
	if len(items) > MaxItemsPerOrder {
		return invalid("at most %d items per order", MaxItemsPerOrder)
	}
	for i, it := range items {
		if it.ProductID <= 0 || it.ProductID > math.MaxInt32 {
			return invalid("item %d: product id out of range", i)
		}
		if it.Quantity <= 0 {
			return invalid("item %d: quantity must be positive", i)
		}
		if it.Quantity > MaxItemQuantity {
			return invalid("item %d: quantity exceeds %d", i, MaxItemQuantity)
		}
	}
	return nil
}

// PlaceOrder reserves every item and records the order, or changes nothing.
// Items are processed in the given order; the first missing product or
// failed reservation aborts the whole request.
func (c *Coordinator) PlaceOrder(ctx context.Context, buyer auth.Buyer, items []models.ItemRequest) (*models.OrderReceipt, error) {
	if buyer.ID() <= 0 {
		return nil, auth.ErrUnauthorized
	}
	if err := ValidateItems(items); err != nil {
		return nil, err
	}

	event := OrderPlaced{BuyerID: buyer.ID(), Lines: make([]PlacedLine, 0, len(items))}

	err := c.store.WithTx(ctx, func(uow store.UnitOfWork) error {
		event.Lines = event.Lines[:0]

		orderID, err := uow.CreateOrder(ctx, buyer.ID())
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, it := range items {
			product, err := uow.GetProduct(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return &ProductNotFoundError{ProductID: it.ProductID}
				}
				return err
			}

			price, ok, err := uow.TryReserve(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
			}

			if err := uow.AppendLineItem(ctx, orderID, it.ProductID, it.Quantity, price); err != nil {
				return err
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			event.Lines = append(event.Lines, PlacedLine{
				ProductID: it.ProductID,
				SellerID:  product.SellerID,
				Quantity:  it.Quantity,
				UnitPrice: price,
			})
		}

		if err := uow.FinalizeTotal(ctx, orderID, total); err != nil {
			return err
		}
		event.OrderID = orderID
		event.TotalAmount = total
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			c.logger.Info("order rejected",
				zap.Int("buyer_id", buyer.ID()),
				zap.Error(err))
			return nil, err
		}
		c.logger.Error("order failed",
			zap.Int("buyer_id", buyer.ID()),
			zap.Error(err))
		return nil, storageFailure(err)
	}

	event.PlacedAt = c.now()
	c.logger.Info("order placed",
		zap.Int("order_id", event.OrderID),
		zap.Int("buyer_id", event.BuyerID),
		zap.Stringer("total_amount", event.TotalAmount),
		zap.Int("lines", len(event.Lines)))
	c.notify(context.WithoutCancel(ctx), event)

	return &models.OrderReceipt{OrderID: event.OrderID, TotalAmount: event.TotalAmount}, nil
}

func (c *Coordinator) notify(ctx context.Context, event OrderPlaced) {
	for _, l := range c.listeners {
		if err := l.OrderPlaced(ctx, event); err != nil {
			c.logger.Warn("order listener failed",
				zap.Int("order_id", event.OrderID),
				zap.Error(err))
		}
	}
}
