package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pos-platform/ledger-service/internal/domain"
	platformMongo "github.com/pos-platform/ledger-service/pkg/mongodb"
)

// AuditRepository stores best-effort audit records outside the ledger
// transaction. Callers treat a failed write as a logged warning, not an
// operation failure.
type AuditRepository struct {
	collection *platformMongo.InstrumentedCollection
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *platformMongo.InstrumentedDatabase) *AuditRepository {
	repo := &AuditRepository{
		collection: db.Collection("audit_records"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *AuditRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "auditId", Value: 1}}},
		{Keys: bson.D{{Key: "performedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "entityType", Value: 1}, {Key: "entityId", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Record inserts one audit record
func (r *AuditRepository) Record(ctx context.Context, record domain.AuditRecord) error {
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
