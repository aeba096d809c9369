package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/marketplace/internal/models"
)

const ttl = 30 * time.Second

func TestKeys(t *testing.T) {
	assert.Equal(t, "marketplace:orders:buyer:7", BuyerKey(7))
	assert.Equal(t, "marketplace:orders:seller:3", SellerKey(3))
	assert.Equal(t, "marketplace:orders:buyer:7:gen", genKey(BuyerKey(7)))
	assert.Equal(t, "marketplace:orders:seller:3:v12", versionedKey(SellerKey(3), 12))
}

func TestGetBuyerOrders_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)

	mock.ExpectGet(genKey(BuyerKey(1))).RedisNil()
	mock.ExpectGet(versionedKey(BuyerKey(1), 0)).RedisNil()

	orders, version, ok, err := c.GetBuyerOrders(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, orders)
	assert.Equal(t, int64(0), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyerOrders_RoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)
	ctx := context.Background()
	orders := []models.Order{{
		ID:          5,
		BuyerID:     1,
		TotalAmount: decimal.RequireFromString("20.00"),
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
	data, err := json.Marshal(orders)
	require.NoError(t, err)

	mock.ExpectSet(versionedKey(BuyerKey(1), 4), data, ttl).SetVal("OK")
	mock.ExpectGet(genKey(BuyerKey(1))).SetVal("4")
	mock.ExpectGet(versionedKey(BuyerKey(1), 4)).SetVal(string(data))

	require.NoError(t, c.SetBuyerOrders(ctx, 1, 4, orders))
	got, version, ok, err := c.GetBuyerOrders(ctx, 1)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), version)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].ID)
	assert.True(t, got[0].TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.True(t, got[0].CreatedAt.Equal(orders[0].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A refill computed before a commit lands under the generation that the
// commit's invalidation already retired, so the next read misses.
func TestBuyerOrders_RefillAfterInvalidateIsNotServed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)
	ctx := context.Background()
	stale, err := json.Marshal([]models.Order{})
	require.NoError(t, err)

	mock.ExpectGet(genKey(BuyerKey(1))).RedisNil()
	mock.ExpectGet(versionedKey(BuyerKey(1), 0)).RedisNil()
	mock.ExpectIncr(genKey(BuyerKey(1))).SetVal(1)
	mock.ExpectSet(versionedKey(BuyerKey(1), 0), stale, ttl).SetVal("OK")
	mock.ExpectGet(genKey(BuyerKey(1))).SetVal("1")
	mock.ExpectGet(versionedKey(BuyerKey(1), 1)).RedisNil()

	_, version, ok, err := c.GetBuyerOrders(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Invalidate(ctx, 1, nil))
	require.NoError(t, c.SetBuyerOrders(ctx, 1, version, []models.Order{}))

	_, next, ok, err := c.GetBuyerOrders(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSellerOrders_EmptyListIsAHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)
	ctx := context.Background()

	mock.ExpectGet(genKey(SellerKey(3))).SetVal("2")
	mock.ExpectGet(versionedKey(SellerKey(3), 2)).SetVal("[]")

	rows, _, ok, err := c.GetSellerOrders(ctx, 3)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSellerOrders_CorruptValue(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)

	mock.ExpectGet(genKey(SellerKey(3))).RedisNil()
	mock.ExpectGet(versionedKey(SellerKey(3), 0)).SetVal("{not json")

	_, _, ok, err := c.GetSellerOrders(context.Background(), 3)

	assert.False(t, ok)
	assert.ErrorContains(t, err, "failed to decode")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBuyerOrders_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)

	mock.ExpectGet(genKey(BuyerKey(1))).SetErr(errors.New("connection refused"))

	_, _, ok, err := c.GetBuyerOrders(context.Background(), 1)

	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)

	mock.ExpectIncr(genKey(BuyerKey(1))).SetVal(1)
	mock.ExpectIncr(genKey(SellerKey(3))).SetVal(7)
	mock.ExpectIncr(genKey(SellerKey(4))).SetVal(2)

	err := c.Invalidate(context.Background(), 1, []int{3, 4})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate_Error(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, ttl)

	mock.ExpectIncr(genKey(BuyerKey(1))).SetErr(errors.New("timeout"))
	mock.ExpectIncr(genKey(SellerKey(3))).SetVal(1)

	err := c.Invalidate(context.Background(), 1, []int{3})

	assert.ErrorContains(t, err, "failed to invalidate "+BuyerKey(1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
