package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditActionCreate     = "create"
	AuditActionBulkCreate = "bulk_create"
)

// Audit entity types
const (
	AuditEntityLedgerEntry = "stock_ledger_entry"
	AuditEntityLedgerBatch = "stock_ledger_batch"
)

// AuditRecord is a best-effort, non-transactional trail entry describing who
// performed what action. A failed audit write never changes the outcome of
// the primary ledger operation.
type AuditRecord struct {
	AuditID     string         `bson:"auditId" json:"auditId"`
	Action      string         `bson:"action" json:"action"`
	EntityType  string         `bson:"entityType" json:"entityType"`
	EntityID    string         `bson:"entityId,omitempty" json:"entityId,omitempty"`
	PerformedBy string         `bson:"performedBy" json:"performedBy"`
	Metadata    map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt   time.Time      `bson:"createdAt" json:"createdAt"`
}

// NewAuditRecord creates an audit record for a single entity write
func NewAuditRecord(action, entityType, entityID, performedBy string, metadata map[string]any) AuditRecord {
	return AuditRecord{
		AuditID:     fmt.Sprintf("AUD-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.New().String()[:8]),
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		PerformedBy: performedBy,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewBatchAuditRecord creates the single summary record for a bulk batch.
// Individual entries within a batch are not separately audited.
func NewBatchAuditRecord(performedBy string, total, successful, failed int, metadata map[string]any) AuditRecord {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["total"] = total
	metadata["successful"] = successful
	metadata["failed"] = failed
	return NewAuditRecord(AuditActionBulkCreate, AuditEntityLedgerBatch, "", performedBy, metadata)
}
