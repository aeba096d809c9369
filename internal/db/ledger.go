package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// CreateOrder opens a ledger entry with no total yet
func (u *unitOfWork) CreateOrder(ctx context.Context, buyerID int) (int, error) {
	var orderID int
	err := u.tx.QueryRow(ctx,
		"INSERT INTO orders (buyer_id) VALUES ($1) RETURNING id", buyerID).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	return orderID, nil
}

// AppendLineItem records one purchased product at its reserved price
func (u *unitOfWork) AppendLineItem(ctx context.Context, orderID, productID, quantity int, unitPrice decimal.Decimal) error {
	_, err := u.tx.Exec(ctx,
		"INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)",
		orderID, productID, quantity, unitPrice)
	if err != nil {
		return fmt.Errorf("failed to append line item: %w", err)
	}
	return nil
}

// FinalizeTotal stores the order total
func (u *unitOfWork) FinalizeTotal(ctx context.Context, orderID int, total decimal.Decimal) error {
	tag, err := u.tx.Exec(ctx, "UPDATE orders SET total_amount = $2 WHERE id = $1", orderID, total)
	if err != nil {
		return fmt.Errorf("failed to finalize order total: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("failed to finalize order total: order %d not found", orderID)
	}
	return nil
}
