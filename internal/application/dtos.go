package application

import "time"

// LedgerEntryDTO is the outward representation of a stock ledger entry
type LedgerEntryDTO struct {
	EntryID        string     `json:"entryId"`
	ProductID      string     `json:"productId"`
	Action         string     `json:"action"`
	ChangeAmount   int        `json:"changeAmount"`
	QuantityBefore int        `json:"quantityBefore"`
	QuantityAfter  int        `json:"quantityAfter"`
	PriceBefore    *int64     `json:"priceBefore,omitempty"`
	PriceAfter     *int64     `json:"priceAfter,omitempty"`
	ReferenceID    string     `json:"referenceId,omitempty"`
	ReferenceType  string     `json:"referenceType,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	LocationID     string     `json:"locationId,omitempty"`
	BatchNumber    string     `json:"batchNumber,omitempty"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
	PerformedBy    string     `json:"performedBy"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// StockUpdateDTO reports a product stock write performed while recording entries
type StockUpdateDTO struct {
	ProductID     string `json:"productId"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	StockChange   int    `json:"stockChange"`
}

// RecordEntryResultDTO is the result of recording a single ledger entry
type RecordEntryResultDTO struct {
	Entry       LedgerEntryDTO  `json:"entry"`
	StockUpdate *StockUpdateDTO `json:"stockUpdate,omitempty"`
}

// BulkFailureDTO describes one rejected entry within a bulk batch
type BulkFailureDTO struct {
	Index     int    `json:"index"`
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// BulkSummaryDTO aggregates the outcome of a bulk batch
type BulkSummaryDTO struct {
	Total           int     `json:"total"`
	SuccessfulCount int     `json:"successfulCount"`
	FailedCount     int     `json:"failedCount"`
	SuccessRate     float64 `json:"successRate"`
}

// BulkBatchResultDTO is the full result of a bulk recording request
type BulkBatchResultDTO struct {
	Successful     []LedgerEntryDTO `json:"successful"`
	Failed         []BulkFailureDTO `json:"failed"`
	ProductUpdates []StockUpdateDTO `json:"productUpdates"`
	Summary        BulkSummaryDTO   `json:"summary"`
}

// ProductStockDTO is the read model for a product's current stock level
type ProductStockDTO struct {
	ProductID     string    `json:"productId"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	StockQuantity int       `json:"stockQuantity"`
	Deleted       bool      `json:"deleted"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
