package application

import "time"

// RecordEntryCommand represents the command to record a single stock ledger entry
type RecordEntryCommand struct {
	ProductID      string
	Action         string
	ChangeAmount   *int
	QuantityBefore *int
	QuantityAfter  *int
	PriceBefore    *int64
	PriceAfter     *int64
	ReferenceID    string
	ReferenceType  string
	Notes          string
	LocationID     string
	BatchNumber    string
	ExpiryDate     *time.Time
	PerformedBy    string
}

// BulkEntryItem is one entry within a bulk batch, before overrides are applied
type BulkEntryItem struct {
	ProductID      string
	Action         string
	ChangeAmount   *int
	QuantityBefore *int
	QuantityAfter  *int
	PriceBefore    *int64
	PriceAfter     *int64
	ReferenceID    string
	ReferenceType  string
	Notes          string
	LocationID     string
	BatchNumber    string
	ExpiryDate     *time.Time
}

// BulkOverrides holds batch-level values applied to every entry in the batch.
// Empty fields leave the per-entry value untouched.
type BulkOverrides struct {
	Action        string
	ReferenceID   string
	ReferenceType string
	Notes         string
}

// RecordBulkCommand represents the command to record a batch of ledger entries
type RecordBulkCommand struct {
	Entries     []BulkEntryItem
	Overrides   BulkOverrides
	PerformedBy string
}

// GetEntryQuery represents the query to get one ledger entry by its ID
type GetEntryQuery struct {
	EntryID string
}

// GetEntriesByProductQuery represents the query to list a product's ledger history
type GetEntriesByProductQuery struct {
	ProductID string
	Limit     int
	Offset    int
}

// GetEntriesByReferenceQuery represents the query to list entries for a reference
type GetEntriesByReferenceQuery struct {
	ReferenceID string
}

// GetEntriesByTimeRangeQuery represents the query to list a product's entries in a window
type GetEntriesByTimeRangeQuery struct {
	ProductID string
	Start     time.Time
	End       time.Time
}

// GetProductStockQuery represents the query to read a product's current stock
type GetProductStockQuery struct {
	ProductID string
}
