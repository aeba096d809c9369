// Package store defines the storage contracts shared by the Postgres and
// in-memory backends.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/marketplace/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// UnitOfWork is the inventory store and order ledger as seen from inside one
// atomic unit. Nothing written through it is visible to other observers until
// the enclosing WithTx commits.
type UnitOfWork interface {
	// GetProduct returns ErrNotFound when the product does not exist.
	GetProduct(ctx context.Context, productID int) (*models.Product, error)

	// TryReserve decrements the available quantity by quantity if enough is
	// available and returns the current unit price. ok is false, with no
	// mutation, when quantity exceeds what is available.
	TryReserve(ctx context.Context, productID, quantity int) (unitPrice decimal.Decimal, ok bool, err error)

	CreateOrder(ctx context.Context, buyerID int) (orderID int, err error)
	AppendLineItem(ctx context.Context, orderID, productID, quantity int, unitPrice decimal.Decimal) error
	FinalizeTotal(ctx context.Context, orderID int, total decimal.Decimal) error
}

// Transactor runs fn inside one atomic unit. The unit commits only when fn
// returns nil; otherwise it is rolled back and fn's error is returned as is.
type Transactor interface {
	WithTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// Catalog is the read side of the inventory plus seller-owned product creation.
type Catalog interface {
	Exists(ctx context.Context, productID int) (bool, error)
	GetPrice(ctx context.Context, productID int) (decimal.Decimal, error)
	GetProduct(ctx context.Context, productID int) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListSellerProducts(ctx context.Context, sellerID int) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
}

// OrderViews are read-only projections over committed orders, newest first.
type OrderViews interface {
	OrdersForBuyer(ctx context.Context, buyerID int) ([]models.Order, error)
	OrdersForSeller(ctx context.Context, sellerID int) ([]models.SellerOrderRow, error)
}

// Users stores registered identities.
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash string, role models.Role) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Store is everything a backend provides.
type Store interface {
	Transactor
	Catalog
	OrderViews
	Users
	Ping(ctx context.Context) error
	Close()
}
