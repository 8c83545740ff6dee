package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for ledger domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new CloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// CreateEventWithCorrelation creates an event with correlation tracking
func (f *EventFactory) CreateEventWithCorrelation(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
	correlationID string,
) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.CorrelationID = correlationID
	return event
}

// CreateLedgerEntryRecordedEvent creates a LedgerEntryRecorded event
func (f *EventFactory) CreateLedgerEntryRecordedEvent(ctx context.Context, data LedgerEntryRecordedData) *CloudEvent {
	event := f.CreateEvent(ctx, LedgerEntryRecorded, "ledger-entry/"+data.EntryID, data)
	event.ProductID = data.ProductID
	return event
}

// CreateStockLevelChangedEvent creates a StockLevelChanged event
func (f *EventFactory) CreateStockLevelChangedEvent(ctx context.Context, data StockLevelChangedData) *CloudEvent {
	event := f.CreateEvent(ctx, StockLevelChanged, "product/"+data.ProductID, data)
	event.ProductID = data.ProductID
	return event
}

// CreateBulkBatchCompletedEvent creates a BulkBatchCompleted event
func (f *EventFactory) CreateBulkBatchCompletedEvent(ctx context.Context, data BulkBatchCompletedData) *CloudEvent {
	return f.CreateEvent(ctx, BulkBatchCompleted, "ledger-batch", data)
}
