// Package memstore keeps the catalog, ledger and users in process memory.
//
// A reservation bumps a per-product held counter instead of the committed
// quantity, so readers only ever see committed state. Commit moves holds into
// the committed quantity and publishes ledger rows under the store-wide write
// lock; rollback gives holds back.
//
// A reservation that only fails because of another unit's holds waits for
// those holds to be committed or released and then re-checks, the way a
// row lock behaves in Postgres.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

// DefaultLockWait bounds how long a reservation waits on other units' holds
const DefaultLockWait = 2 * time.Second

// ErrLockTimeout is returned when holds were not released within the lock wait.
// Two units waiting on each other's holds end this way.
var ErrLockTimeout = errors.New("lock wait timeout")

type product struct {
	mu      sync.Mutex // guards held, and quantity against concurrent commits
	cond    *sync.Cond // signaled when held changes
	data    models.Product
	held    int
	waiters int
}

func newProduct(data models.Product) *product {
	p := &product{data: data}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Store is an in-memory store.Store
type Store struct {
	mu sync.RWMutex

	products map[int]*product
	users    map[int]models.User
	byName   map[string]int
	orders   []models.Order
	items    []models.OrderLineItem

	nextUserID    int
	nextProductID int
	nextOrderID   int
	nextItemID    int

	now      func() time.Time
	lockWait time.Duration
}

var _ store.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		products: make(map[int]*product),
		users:    make(map[int]models.User),
		byName:   make(map[string]int),
		now:      time.Now,
		lockWait: DefaultLockWait,
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() {}

// WithTx runs fn against a pending unit. Its reservations are held until fn
// returns; they are committed together with its ledger rows if fn and ctx both
// allow it, and released otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(uow store.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u := &unit{s: s, holds: make(map[int]int), totals: make(map[int]decimal.Decimal)}
	// No-op after a successful commit; releases holds on error or panic.
	defer u.rollback()

	if err := fn(u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if err := u.commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type unit struct {
	s      *Store
	holds  map[int]int
	order  []int // product ids in first-hold order
	orders []models.Order
	items  []models.OrderLineItem
	totals map[int]decimal.Decimal
	done   bool
}

func (u *unit) GetProduct(ctx context.Context, productID int) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := u.s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	p.QuantityAvailable -= u.holds[productID]
	return p, nil
}

func (u *unit) TryReserve(ctx context.Context, productID, quantity int) (decimal.Decimal, bool, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}

	u.s.mu.RLock()
	p, ok := u.s.products[productID]
	u.s.mu.RUnlock()
	if !ok {
		return decimal.Zero, false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	own := u.holds[productID]
	enough := func() bool { return p.data.QuantityAvailable-p.held >= quantity }
	// Only other units' holds stand in the way; they may still roll back.
	blocked := func() bool { return !enough() && p.data.QuantityAvailable-own >= quantity }
	if blocked() {
		if err := u.s.waitWhile(ctx, p, blocked); err != nil {
			return decimal.Zero, false, err
		}
	}
	if !enough() {
		return decimal.Zero, false, nil
	}
	p.held += quantity
	if _, seen := u.holds[productID]; !seen {
		u.order = append(u.order, productID)
	}
	u.holds[productID] += quantity
	return p.data.UnitPrice, true, nil
}

func (u *unit) CreateOrder(ctx context.Context, buyerID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	u.s.mu.Lock()
	if _, ok := u.s.users[buyerID]; !ok {
		u.s.mu.Unlock()
		return 0, fmt.Errorf("failed to create order: buyer %d does not exist", buyerID)
	}
	u.s.nextOrderID++
	id := u.s.nextOrderID
	u.s.mu.Unlock()

	u.orders = append(u.orders, models.Order{ID: id, BuyerID: buyerID})
	return id, nil
}

func (u *unit) AppendLineItem(ctx context.Context, orderID, productID, quantity int, unitPrice decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !u.hasOrder(orderID) {
		return fmt.Errorf("failed to append line item: order %d not found", orderID)
	}
	if quantity <= 0 {
		return fmt.Errorf("failed to append line item: quantity must be positive")
	}
	u.items = append(u.items, models.OrderLineItem{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	return nil
}

func (u *unit) FinalizeTotal(ctx context.Context, orderID int, total decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !u.hasOrder(orderID) {
		return fmt.Errorf("failed to finalize order total: order %d not found", orderID)
	}
	u.totals[orderID] = total
	return nil
}

func (u *unit) hasOrder(orderID int) bool {
	for _, o := range u.orders {
		if o.ID == orderID {
			return true
		}
	}
	return false
}

func (u *unit) commit() error {
	for _, o := range u.orders {
		if _, ok := u.totals[o.ID]; !ok {
			return fmt.Errorf("order %d has no total", o.ID)
		}
	}

	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range u.order {
		p := s.products[id]
		q := u.holds[id]
		p.mu.Lock()
		p.data.QuantityAvailable -= q
		p.held -= q
		p.cond.Broadcast()
		p.mu.Unlock()
	}
	for _, o := range u.orders {
		o.CreatedAt = now
		o.TotalAmount = u.totals[o.ID]
		s.orders = append(s.orders, o)
	}
	for _, it := range u.items {
		s.nextItemID++
		it.ID = s.nextItemID
		s.items = append(s.items, it)
	}
	u.done = true
	return nil
}

func (u *unit) rollback() {
	if u.done {
		return
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, id := range u.order {
		p := u.s.products[id]
		p.mu.Lock()
		p.held -= u.holds[id]
		p.cond.Broadcast()
		p.mu.Unlock()
	}
	u.done = true
}

// waitWhile blocks on p.cond while blocked reports true, until ctx ends or the
// lock wait expires. p.mu must be held.
func (s *Store) waitWhile(ctx context.Context, p *product, blocked func() bool) error {
	wake := func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
	stop := context.AfterFunc(ctx, wake)
	defer stop()

	expired := false
	timer := time.AfterFunc(s.lockWait, func() {
		p.mu.Lock()
		expired = true
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()

	p.waiters++
	defer func() { p.waiters-- }()
	for blocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if expired {
			return fmt.Errorf("failed to reserve product %d: %w", p.data.ID, ErrLockTimeout)
		}
		p.cond.Wait()
	}
	return nil
}

func (s *Store) snapshot(p *product) models.Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// GetProduct returns the committed state of a product
func (s *Store) GetProduct(ctx context.Context, productID int) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	data := s.snapshot(p)
	return &data, nil
}

// Exists reports whether the product exists
func (s *Store) Exists(ctx context.Context, productID int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.products[productID]
	return ok, nil
}

// GetPrice returns the current unit price
func (s *Store) GetPrice(ctx context.Context, productID int) (decimal.Decimal, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.UnitPrice, nil
}

func (s *Store) listProducts(ctx context.Context, keep func(models.Product) bool) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := []models.Product{}
	for _, p := range s.products {
		data := s.snapshot(p)
		if keep(data) {
			products = append(products, data)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// ListProducts returns the whole catalog ordered by id
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.listProducts(ctx, func(models.Product) bool { return true })
}

// ListSellerProducts returns the seller's products ordered by id
func (s *Store) ListSellerProducts(ctx context.Context, sellerID int) ([]models.Product, error) {
	return s.listProducts(ctx, func(p models.Product) bool { return p.SellerID == sellerID })
}

// CreateProduct adds a product owned by p.SellerID
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.UnitPrice.IsNegative() || p.QuantityAvailable < 0 {
		return nil, fmt.Errorf("failed to create product: price and quantity must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[p.SellerID]; !ok {
		return nil, fmt.Errorf("failed to create product: seller %d does not exist", p.SellerID)
	}
	s.nextProductID++
	data := *p
	data.ID = s.nextProductID
	data.CreatedAt = s.now()
	s.products[data.ID] = newProduct(data)
	return &data, nil
}

// SetQuantity overwrites a product's committed stock level
func (s *Store) SetQuantity(productID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if quantity < p.held {
		return fmt.Errorf("failed to set quantity: %d units are held by pending orders", p.held)
	}
	p.data.QuantityAvailable = quantity
	p.cond.Broadcast()
	return nil
}
