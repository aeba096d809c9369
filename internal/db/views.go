package db

import (
	"context"
	"fmt"

	"github.com/xtrntr/marketplace/internal/models"
)

// OrdersForBuyer lists the committed orders of one buyer, newest first
func (db *DB) OrdersForBuyer(ctx context.Context, buyerID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, buyer_id, total_amount, created_at
		 FROM orders
		 WHERE buyer_id = $1 AND total_amount IS NOT NULL
		 ORDER BY created_at DESC, id DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query buyer orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.TotalAmount, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query buyer orders: %w", err)
	}
	return orders, nil
}

// OrdersForSeller lists one row per line item that references a product
// owned by the seller, newest order first
func (db *DB) OrdersForSeller(ctx context.Context, sellerID int) ([]models.SellerOrderRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT o.id, o.buyer_id, o.created_at, o.total_amount,
		        p.id, p.name, oi.quantity, oi.unit_price
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.id
		 JOIN products p ON p.id = oi.product_id
		 WHERE p.seller_id = $1 AND o.total_amount IS NOT NULL
		 ORDER BY o.created_at DESC, o.id DESC, oi.id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seller orders: %w", err)
	}
	defer rows.Close()

	result := []models.SellerOrderRow{}
	for rows.Next() {
		var r models.SellerOrderRow
		err := rows.Scan(&r.OrderID, &r.BuyerID, &r.CreatedAt, &r.TotalAmount,
			&r.ProductID, &r.ProductName, &r.Quantity, &r.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seller order: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query seller orders: %w", err)
	}
	return result, nil
}
