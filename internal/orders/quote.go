package orders

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

// Quoter prices a cart at current catalog prices. It reserves nothing, so a
// quote is no promise that PlaceOrder will succeed at the same total.
type Quoter struct {
	catalog store.Catalog
}

// NewQuoter creates a quoter over the catalog
func NewQuoter(catalog store.Catalog) *Quoter {
	return &Quoter{catalog: catalog}
}

// Quote validates items the same way PlaceOrder does and prices each line
func (q *Quoter) Quote(ctx context.Context, items []models.ItemRequest) (*models.Quote, error) {
	if err := ValidateItems(items); err != nil {
		return nil, err
	}

	quote := &models.Quote{Lines: make([]models.QuoteLine, 0, len(items)), TotalAmount: decimal.Zero}
	for _, it := range items {
		exists, err := q.catalog.Exists(ctx, it.ProductID)
		if err != nil {
			return nil, storageFailure(err)
		}
		if !exists {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}

		price, err := q.catalog.GetPrice(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: it.ProductID}
			}
			return nil, storageFailure(err)
		}

		subtotal := price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		quote.Lines = append(quote.Lines, models.QuoteLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: price,
			Subtotal:  subtotal,
		})
		quote.TotalAmount = quote.TotalAmount.Add(subtotal)
	}
	return quote, nil
}
