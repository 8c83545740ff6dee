package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// LedgerEntryRecordedEvent is published when a stock ledger entry is recorded
type LedgerEntryRecordedEvent struct {
	EntryID        string    `json:"entryId"`
	ProductID      string    `json:"productId"`
	Action         string    `json:"action"`
	ChangeAmount   int       `json:"changeAmount"`
	QuantityBefore int       `json:"quantityBefore"`
	QuantityAfter  int       `json:"quantityAfter"`
	ReferenceID    string    `json:"referenceId,omitempty"`
	ReferenceType  string    `json:"referenceType,omitempty"`
	PerformedBy    string    `json:"performedBy"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e *LedgerEntryRecordedEvent) EventType() string     { return "pos.ledger.entry-recorded" }
func (e *LedgerEntryRecordedEvent) OccurredAt() time.Time { return e.CreatedAt }

// StockLevelChangedEvent is published when the stock mutator writes a
// product's current stock
type StockLevelChangedEvent struct {
	ProductID     string    `json:"productId"`
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
	Action        string    `json:"action"`
	EntryID       string    `json:"entryId"`
	ChangedAt     time.Time `json:"changedAt"`
}

func (e *StockLevelChangedEvent) EventType() string     { return "pos.ledger.stock-level-changed" }
func (e *StockLevelChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// BulkBatchCompletedEvent is published once per bulk batch with aggregate
// counts; individual entries emit their own LedgerEntryRecordedEvent
type BulkBatchCompletedEvent struct {
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	PerformedBy string    `json:"performedBy"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *BulkBatchCompletedEvent) EventType() string     { return "pos.ledger.bulk-batch-completed" }
func (e *BulkBatchCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
