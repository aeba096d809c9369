package memstore

import (
	"context"

	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

// OrdersForBuyer returns committed orders newest first
func (s *Store) OrdersForBuyer(ctx context.Context, buyerID int) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.Order{}
	// s.orders is in commit order; ids are not, so walk backwards.
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].BuyerID == buyerID {
			orders = append(orders, s.orders[i])
		}
	}
	return orders, nil
}

// OrdersForSeller returns one row per committed line item of the seller's products
func (s *Store) OrdersForSeller(ctx context.Context, sellerID int) ([]models.SellerOrderRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	itemsByOrder := make(map[int][]models.OrderLineItem, len(s.orders))
	for _, it := range s.items {
		itemsByOrder[it.OrderID] = append(itemsByOrder[it.OrderID], it)
	}

	rows := []models.SellerOrderRow{}
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		for _, it := range itemsByOrder[o.ID] {
			p, ok := s.products[it.ProductID]
			if !ok {
				continue
			}
			data := s.snapshot(p)
			if data.SellerID != sellerID {
				continue
			}
			rows = append(rows, models.SellerOrderRow{
				OrderID:     o.ID,
				BuyerID:     o.BuyerID,
				CreatedAt:   o.CreatedAt,
				TotalAmount: o.TotalAmount,
				ProductID:   data.ID,
				ProductName: data.Name,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
		}
	}
	return rows, nil
}

// CreateUser registers a user; usernames are unique
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, role models.Role) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, store.ErrDuplicate
	}
	s.nextUserID++
	u := models.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byName[username] = u.ID
	return &u, nil
}

// GetUserByUsername looks up a user
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

// ListUsers returns all users ordered by id
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for id := 1; id <= s.nextUserID; id++ {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}
