package domain

import (
	"context"
	"time"
)

// LedgerEntryRepository defines the port for append-only entry persistence
type LedgerEntryRepository interface {
	// Save persists a single ledger entry (append-only)
	Save(ctx context.Context, entry *LedgerEntryAggregate) error

	// FindByEntryID retrieves one entry by its ledger entry ID
	FindByEntryID(ctx context.Context, entryID string) (*LedgerEntryAggregate, error)

	// FindByProduct retrieves entries for a product, newest first
	FindByProduct(ctx context.Context, productID string, limit, offset int) ([]*LedgerEntryAggregate, error)

	// FindByReference retrieves entries created by a given reference
	FindByReference(ctx context.Context, referenceID string) ([]*LedgerEntryAggregate, error)

	// FindByTimeRange retrieves entries for a product within a time range
	FindByTimeRange(ctx context.Context, productID string, start, end time.Time) ([]*LedgerEntryAggregate, error)
}

// ProductRepository defines the port for the referenced product collection.
// The ledger consumes it through lookup and conditional stock update only.
type ProductRepository interface {
	// FindByID retrieves a product by its product ID, including soft-deleted
	// ones; callers decide how to treat the deleted flag
	FindByID(ctx context.Context, productID string) (*Product, error)

	// UpdateStock conditionally sets the product's stock. The write only
	// applies when the stored stock still equals expectedStock; a concurrent
	// change surfaces as ErrStockConflict.
	UpdateStock(ctx context.Context, productID string, expectedStock, newStock int, at time.Time) error
}

// AuditRecorder defines the port for the best-effort audit trail
type AuditRecorder interface {
	Record(ctx context.Context, record AuditRecord) error
}

// UnitOfWork is the transaction boundary the core writes through. The core
// never opens or closes storage sessions itself; all writes of one recorded
// entry happen inside a single fn invocation.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
