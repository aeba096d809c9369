package auth

import (
	"fmt"

	"github.com/xtrntr/marketplace/internal/models"
)

// Identity is a verified user as carried by a token
type Identity struct {
	UserID   int
	Username string
	Role     models.Role
}

// Buyer is proof that a shopper identity was verified.
// Only Identity.Buyer can produce a non-zero value.
type Buyer struct{ id int }

// ID returns the buyer's user id
func (b Buyer) ID() int { return b.id }

// Seller is proof that a seller identity was verified
type Seller struct{ id int }

// ID returns the seller's user id
func (s Seller) ID() int { return s.id }

// Admin is proof that an admin identity was verified
type Admin struct{ id int }

// ID returns the admin's user id
func (a Admin) ID() int { return a.id }

func (i Identity) require(role models.Role) error {
	if i.UserID <= 0 {
		return ErrUnauthorized
	}
	if i.Role != role {
		return fmt.Errorf("%w: %s role required", ErrForbidden, role)
	}
	return nil
}

// Buyer returns the buyer capability or ErrForbidden
func (i Identity) Buyer() (Buyer, error) {
	if err := i.require(models.RoleShopper); err != nil {
		return Buyer{}, err
	}
	return Buyer{id: i.UserID}, nil
}

// Seller returns the seller capability or ErrForbidden
func (i Identity) Seller() (Seller, error) {
	if err := i.require(models.RoleSeller); err != nil {
		return Seller{}, err
	}
	return Seller{id: i.UserID}, nil
}

// Admin returns the admin capability or ErrForbidden
func (i Identity) Admin() (Admin, error) {
	if err := i.require(models.RoleAdmin); err != nil {
		return Admin{}, err
	}
	return Admin{id: i.UserID}, nil
}
