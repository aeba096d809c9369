package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the capability a user was registered with
type Role string

const (
	RoleShopper Role = "shopper"
	RoleSeller  Role = "seller"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleShopper, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered user
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Product is a catalog entry owned by a seller
type Product struct {
	ID                int             `json:"id"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"price"`
	QuantityAvailable int             `json:"quantity"`
	SellerID          int             `json:"seller_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Order is a committed purchase; TotalAmount is derived from its line items
type Order struct {
	ID          int             `json:"id"`
	BuyerID     int             `json:"buyer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"order_date"`
}

// OrderLineItem snapshots the unit price at purchase time
type OrderLineItem struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	ProductID int             `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

// ItemRequest is one requested (product, quantity) pair
type ItemRequest struct {
	ProductID int `json:"id"`
	Quantity  int `json:"quantity"`
}

// OrderReceipt is returned for a successfully placed order
type OrderReceipt struct {
	OrderID     int             `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// SellerOrderRow joins an order, one of its line items, and the product it references
type SellerOrderRow struct {
	OrderID     int             `json:"id"`
	BuyerID     int             `json:"buyer_id"`
	CreatedAt   time.Time       `json:"order_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ProductID   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

// QuoteLine prices one requested item at current catalog prices
type QuoteLine struct {
	ProductID int             `json:"id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Quote is a non-binding price for a cart
type Quote struct {
	Lines       []QuoteLine     `json:"lines"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
