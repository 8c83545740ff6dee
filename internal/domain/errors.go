package domain

import "errors"

// Ledger domain errors
var (
	// ErrMissingProductID is returned when an entry has no product reference
	ErrMissingProductID = errors.New("product ID is required")

	// ErrMissingAction is returned when an entry has no action
	ErrMissingAction = errors.New("action is required")

	// ErrMissingActor is returned when no performing user is supplied
	ErrMissingActor = errors.New("performedBy is required")

	// ErrInvalidAction is returned when an action is outside the defined set
	ErrInvalidAction = errors.New("invalid ledger action")

	// ErrQuantityMismatch is returned when quantityBefore + changeAmount
	// does not equal quantityAfter
	ErrQuantityMismatch = errors.New("quantity invariant violated")

	// ErrProductNotFound is returned when the referenced product does not exist
	ErrProductNotFound = errors.New("product not found")

	// ErrProductDeleted is returned when the referenced product is soft-deleted
	ErrProductDeleted = errors.New("product has been deleted")

	// ErrStockConflict is returned when the product's stock changed between
	// read and conditional write
	ErrStockConflict = errors.New("stock level changed concurrently")

	// ErrEntryNotFound is returned when a ledger entry cannot be found
	ErrEntryNotFound = errors.New("ledger entry not found")
)
