// Package cache stores buyer and seller order views in Redis.
//
// Each view key has a generation counter. Values are written under the
// generation observed before the store read, and Invalidate bumps the
// counter, so a read that raced a commit can only fill a generation nobody
// looks up any more.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xtrntr/marketplace/internal/models"
)

const (
	buyerKeyFmt  = "marketplace:orders:buyer:%d"
	sellerKeyFmt = "marketplace:orders:seller:%d"
)

// BuyerKey is the cache key of a buyer's order history
func BuyerKey(buyerID int) string { return fmt.Sprintf(buyerKeyFmt, buyerID) }

// SellerKey is the cache key of a seller's order view
func SellerKey(sellerID int) string { return fmt.Sprintf(sellerKeyFmt, sellerID) }

func genKey(key string) string { return key + ":gen" }

func versionedKey(key string, version int64) string { return fmt.Sprintf("%s:v%d", key, version) }

// NewClient connects to Redis at addr and verifies it answers
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// ViewCache keeps JSON-encoded views with a TTL
type ViewCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New creates a view cache
func New(client redis.Cmdable, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func (c *ViewCache) version(ctx context.Context, key string) (int64, error) {
	version, err := c.client.Get(ctx, genKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read generation of %s: %w", key, err)
	}
	return version, nil
}

func (c *ViewCache) get(ctx context.Context, key string, dest any) (int64, bool, error) {
	version, err := c.version(ctx, key)
	if err != nil {
		return 0, false, err
	}
	data, err := c.client.Get(ctx, versionedKey(key, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return version, false, nil
		}
		return version, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return version, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return version, true, nil
}

func (c *ViewCache) set(ctx context.Context, key string, version int64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, versionedKey(key, version), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// GetBuyerOrders returns a cached buyer history and the generation it was
// looked up under. A miss still reports the generation for the refill.
func (c *ViewCache) GetBuyerOrders(ctx context.Context, buyerID int) ([]models.Order, int64, bool, error) {
	var orders []models.Order
	version, ok, err := c.get(ctx, BuyerKey(buyerID), &orders)
	if !ok {
		return nil, version, false, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, version, true, nil
}

// SetBuyerOrders caches a buyer history under version
func (c *ViewCache) SetBuyerOrders(ctx context.Context, buyerID int, version int64, orders []models.Order) error {
	return c.set(ctx, BuyerKey(buyerID), version, orders)
}

// GetSellerOrders returns a cached seller view and its generation
func (c *ViewCache) GetSellerOrders(ctx context.Context, sellerID int) ([]models.SellerOrderRow, int64, bool, error) {
	var rows []models.SellerOrderRow
	version, ok, err := c.get(ctx, SellerKey(sellerID), &rows)
	if !ok {
		return nil, version, false, err
	}
	if rows == nil {
		rows = []models.SellerOrderRow{}
	}
	return rows, version, true, nil
}

// SetSellerOrders caches a seller view under version
func (c *ViewCache) SetSellerOrders(ctx context.Context, sellerID int, version int64, rows []models.SellerOrderRow) error {
	return c.set(ctx, SellerKey(sellerID), version, rows)
}

// Invalidate moves the buyer's history and the views of every listed seller
// to a new generation. Values under old generations expire with their TTL.
func (c *ViewCache) Invalidate(ctx context.Context, buyerID int, sellerIDs []int) error {
	keys := make([]string, 0, len(sellerIDs)+1)
	keys = append(keys, BuyerKey(buyerID))
	for _, id := range sellerIDs {
		keys = append(keys, SellerKey(id))
	}
	var errs []error
	for _, key := range keys {
		if err := c.client.Incr(ctx, genKey(key)).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to invalidate %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
