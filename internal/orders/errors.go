package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest rejects malformed input before any storage work
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStorageFailure means nothing was committed; the whole call may be retried
	ErrStorageFailure = errors.New("storage failure")
)

// ProductNotFoundError names the first requested product that does not exist
type ProductNotFoundError struct {
	ProductID int
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError names the item whose reservation failed
type InsufficientStockError struct {
	ProductID int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (requested %d)", e.ProductID, e.Requested)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

// isDomainError reports whether err already carries a caller-facing outcome
func isDomainError(err error) bool {
	var notFound *ProductNotFoundError
	var insufficient *InsufficientStockError
	return errors.As(err, &notFound) || errors.As(err, &insufficient) || errors.Is(err, ErrInvalidRequest)
}
