package cloudevents

import (
	"time"
)

// EventType constants for ledger domain events
const (
	LedgerEntryRecorded = "pos.ledger.entry-recorded"
	StockLevelChanged   = "pos.ledger.stock-level-changed"
	BulkBatchCompleted  = "pos.ledger.bulk-batch-completed"
)

// Source constants for event sources
const (
	SourceLedger = "/pos/ledger-service"
)

// CloudEvent represents a CloudEvents v1.0 compliant event
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// POS-specific extensions
	CorrelationID string `json:"poscorrelationid,omitempty"`
	ProductID     string `json:"posproductid,omitempty"`

	// W3C trace context, propagated into message headers
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// LedgerEntryRecordedData represents the data payload for LedgerEntryRecorded
type LedgerEntryRecordedData struct {
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

// StockLevelChangedData represents the data payload for StockLevelChanged
type StockLevelChangedData struct {
	ProductID     string    `json:"productId"`
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
	Action        string    `json:"action"`
	EntryID       string    `json:"entryId"`
	ChangedAt     time.Time `json:"changedAt"`
}

// BulkBatchCompletedData represents the data payload for BulkBatchCompleted
type BulkBatchCompletedData struct {
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	PerformedBy string    `json:"performedBy"`
	CompletedAt time.Time `json:"completedAt"`
}
