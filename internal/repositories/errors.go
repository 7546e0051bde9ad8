package repositories

import (
	"errors"
	"fmt"
)

// RepositoryError classifies persistence failures so services can translate
// them into domain errors without inspecting driver internals.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err represents a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err represents a uniqueness or concurrency
// conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// InsufficientStockError is returned by stock debits that would push a menu
// item below zero. It carries enough detail for shortage reporting.
type InsufficientStockError struct {
	MenuItemID int64
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("menu item %d has %d in stock, %d requested", e.MenuItemID, e.Available, e.Requested)
}

// AsInsufficientStock unwraps err into an InsufficientStockError when it is
// one.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}
