package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrArchivedOrderNotFound = errors.New("archived order not found")
	ErrOrderIDMismatch       = errors.New("order id does not match snapshot id")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrMissingCreatedAt      = errors.New("order snapshot has no created_at")
)

// ArchivalError reports that a sweep selected orders but could not move them.
// The batch is atomic, so every selected order is still live.
type ArchivalError struct {
	Selected int
	Err      error
}

func (e *ArchivalError) Error() string {
	return fmt.Sprintf("archiving %d orders: %v", e.Selected, e.Err)
}

func (e *ArchivalError) Unwrap() error { return e.Err }
