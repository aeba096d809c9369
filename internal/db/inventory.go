package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

const productColumns = "id, name, unit_price, quantity_available, seller_id, created_at"

func scanProduct(row pgx.Row) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.QuantityAvailable, &p.SellerID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func getProduct(ctx context.Context, q querier, productID int) (*models.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func listProducts(ctx context.Context, q querier, sql string, args ...any) ([]models.Product, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetProduct retrieves a product by id
func (db *DB) GetProduct(ctx context.Context, productID int) (*models.Product, error) {
	return getProduct(ctx, db.Pool, productID)
}

// Exists reports whether a product with the given id exists
func (db *DB) Exists(ctx context.Context, productID int) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", err)
	}
	return exists, nil
}

// GetPrice returns the current unit price of a product
func (db *DB) GetPrice(ctx context.Context, productID int) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := db.Pool.QueryRow(ctx, "SELECT unit_price FROM products WHERE id = $1", productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, store.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get price: %w", err)
	}
	return price, nil
}

// ListProducts returns the whole catalog
func (db *DB) ListProducts(ctx context.Context) ([]models.Product, error) {
	return listProducts(ctx, db.Pool, "SELECT "+productColumns+" FROM products ORDER BY id")
}

// ListSellerProducts returns the products owned by a seller
func (db *DB) ListSellerProducts(ctx context.Context, sellerID int) ([]models.Product, error) {
	return listProducts(ctx, db.Pool,
		"SELECT "+productColumns+" FROM products WHERE seller_id = $1 ORDER BY id", sellerID)
}

// CreateProduct inserts a new product
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	created, err := scanProduct(db.Pool.QueryRow(ctx,
		"INSERT INTO products (name, unit_price, quantity_available, seller_id) VALUES ($1, $2, $3, $4) RETURNING "+productColumns,
		p.Name, p.UnitPrice, p.QuantityAvailable, p.SellerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return created, nil
}

func (u *unitOfWork) GetProduct(ctx context.Context, productID int) (*models.Product, error) {
	return getProduct(ctx, u.tx, productID)
}

// TryReserve is a single conditional update. The row lock it takes makes a
// concurrent reservation of the same product wait for this transaction and
// then re-check the predicate against the committed quantity.
func (u *unitOfWork) TryReserve(ctx context.Context, productID, quantity int) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := u.tx.QueryRow(ctx,
		`UPDATE products SET quantity_available = quantity_available - $2
		 WHERE id = $1 AND quantity_available >= $2
		 RETURNING unit_price`,
		productID, quantity).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to reserve stock: %w", err)
	}
	return price, true, nil
}
