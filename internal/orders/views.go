package orders

import (
	"context"

	"go.uber.org/zap"

	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

// ViewCache holds recently read views. A miss returns ok false together with
// the version to refill under. Invalidate must make every earlier version
// unreadable, so a refill computed before a commit cannot outlive it.
type ViewCache interface {
	GetBuyerOrders(ctx context.Context, buyerID int) (orders []models.Order, version int64, ok bool, err error)
	SetBuyerOrders(ctx context.Context, buyerID int, version int64, orders []models.Order) error
	GetSellerOrders(ctx context.Context, sellerID int) (rows []models.SellerOrderRow, version int64, ok bool, err error)
	SetSellerOrders(ctx context.Context, sellerID int, version int64, rows []models.SellerOrderRow) error
	Invalidate(ctx context.Context, buyerID int, sellerIDs []int) error
}

// Views serves order history reads, optionally through a cache
type Views struct {
	store  store.OrderViews
	cache  ViewCache
	logger *zap.Logger
}

// NewViews creates the read side. cache may be nil.
func NewViews(s store.OrderViews, cache ViewCache, logger *zap.Logger) *Views {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Views{store: s, cache: cache, logger: logger}
}

// OrdersForBuyer returns the buyer's committed orders, newest first
func (v *Views) OrdersForBuyer(ctx context.Context, buyer auth.Buyer) ([]models.Order, error) {
	if buyer.ID() <= 0 {
		return nil, auth.ErrUnauthorized
	}
	refill := false
	var version int64
	if v.cache != nil {
		cached, ver, ok, err := v.cache.GetBuyerOrders(ctx, buyer.ID())
		switch {
		case err != nil:
			v.logger.Warn("view cache read failed", zap.Int("buyer_id", buyer.ID()), zap.Error(err))
		case ok:
			return cached, nil
		default:
			refill, version = true, ver
		}
	}

	orders, err := v.store.OrdersForBuyer(ctx, buyer.ID())
	if err != nil {
		return nil, storageFailure(err)
	}

	if refill {
		if err := v.cache.SetBuyerOrders(ctx, buyer.ID(), version, orders); err != nil {
			v.logger.Warn("view cache write failed", zap.Int("buyer_id", buyer.ID()), zap.Error(err))
		}
	}
	return orders, nil
}

// OrdersForSeller returns line items of the seller's products, newest order first
func (v *Views) OrdersForSeller(ctx context.Context, seller auth.Seller) ([]models.SellerOrderRow, error) {
	if seller.ID() <= 0 {
		return nil, auth.ErrUnauthorized
	}
	refill := false
	var version int64
	if v.cache != nil {
		cached, ver, ok, err := v.cache.GetSellerOrders(ctx, seller.ID())
		switch {
		case err != nil:
			v.logger.Warn("view cache read failed", zap.Int("seller_id", seller.ID()), zap.Error(err))
		case ok:
			return cached, nil
		default:
			refill, version = true, ver
		}
	}

	rows, err := v.store.OrdersForSeller(ctx, seller.ID())
	if err != nil {
		return nil, storageFailure(err)
	}

	if refill {
		if err := v.cache.SetSellerOrders(ctx, seller.ID(), version, rows); err != nil {
			v.logger.Warn("view cache write failed", zap.Int("seller_id", seller.ID()), zap.Error(err))
		}
	}
	return rows, nil
}

// OrderPlaced drops the cached views the new order makes stale
func (v *Views) OrderPlaced(ctx context.Context, event OrderPlaced) error {
	if v.cache == nil {
		return nil
	}
	return v.cache.Invalidate(ctx, event.BuyerID, event.SellerIDs())
}
