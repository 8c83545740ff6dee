package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LedgerEntryAggregate wraps a persisted ledger entry together with its
// pending domain events. Stored in its own collection for unbounded history.
type LedgerEntryAggregate struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	Entry StockLedgerEntry   `bson:"entry"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewLedgerEntryAggregate creates an aggregate for a validated entry and
// queues the entry-recorded event
func NewLedgerEntryAggregate(entry StockLedgerEntry) *LedgerEntryAggregate {
	aggregate := &LedgerEntryAggregate{
		Entry:        entry,
		DomainEvents: make([]DomainEvent, 0),
	}

	aggregate.addDomainEvent(&LedgerEntryRecordedEvent{
		EntryID:        entry.EntryID.String(),
		ProductID:      entry.ProductID,
		Action:         entry.Action.String(),
		ChangeAmount:   entry.ChangeAmount,
		QuantityBefore: entry.QuantityBefore,
		QuantityAfter:  entry.QuantityAfter,
		ReferenceID:    entry.ReferenceID,
		ReferenceType:  entry.ReferenceType,
		PerformedBy:    entry.PerformedBy,
		CreatedAt:      entry.CreatedAt,
	})

	return aggregate
}

// RecordStockWrite queues a stock-level-changed event after the stock
// mutator converges the product
func (a *LedgerEntryAggregate) RecordStockWrite(previousStock, newStock int) {
	a.addDomainEvent(&StockLevelChangedEvent{
		ProductID:     a.Entry.ProductID,
		PreviousStock: previousStock,
		NewStock:      newStock,
		Action:        a.Entry.Action.String(),
		EntryID:       a.Entry.EntryID.String(),
		ChangedAt:     time.Now().UTC(),
	})
}

// PullEvents returns and clears pending domain events
func (a *LedgerEntryAggregate) PullEvents() []DomainEvent {
	events := a.DomainEvents
	a.DomainEvents = nil
	return events
}

func (a *LedgerEntryAggregate) addDomainEvent(event DomainEvent) {
	a.DomainEvents = append(a.DomainEvents, event)
}

// ClearDomainEvents clears all pending domain events
func (a *LedgerEntryAggregate) ClearDomainEvents() {
	a.DomainEvents = nil
}
