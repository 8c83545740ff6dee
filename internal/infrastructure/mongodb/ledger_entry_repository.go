package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pos-platform/ledger-service/internal/domain"
	"github.com/pos-platform/ledger-service/pkg/cloudevents"
	"github.com/pos-platform/ledger-service/pkg/kafka"
	platformMongo "github.com/pos-platform/ledger-service/pkg/mongodb"
	"github.com/pos-platform/ledger-service/pkg/outbox"
	outboxMongo "github.com/pos-platform/ledger-service/pkg/outbox/mongodb"
)

// LedgerEntryRepository persists stock ledger entries. The collection is
// append-only and carries no TTL: ledger history is never expired.
type LedgerEntryRepository struct {
	collection   *platformMongo.InstrumentedCollection
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

// NewLedgerEntryRepository creates a new LedgerEntryRepository
func NewLedgerEntryRepository(db *platformMongo.InstrumentedDatabase, eventFactory *cloudevents.EventFactory) *LedgerEntryRepository {
	repo := &LedgerEntryRepository{
		collection:   db.Collection("ledger_entries"),
		outboxRepo:   outboxMongo.NewOutboxRepository(db.Raw()),
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())
	if err := repo.outboxRepo.EnsureIndexes(context.Background()); err != nil {
		if logger := db.Logger(); logger != nil {
			logger.WithError(err).Warn("Failed to ensure outbox indexes")
		}
	}
	return repo
}

// GetOutboxRepository exposes the outbox store so the background publisher
// can relay events this repository staged during entry transactions.
func (r *LedgerEntryRepository) GetOutboxRepository() *outboxMongo.OutboxRepository {
	return r.outboxRepo
}

func (r *LedgerEntryRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "entry.entryId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "entry.productId", Value: 1}, {Key: "entry.createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "entry.referenceId", Value: 1}}},
		{Keys: bson.D{{Key: "entry.action", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save inserts the entry and stores its pending domain events in the outbox.
// The caller is expected to run this inside a transaction so both writes
// commit together.
func (r *LedgerEntryRepository) Save(ctx context.Context, aggregate *domain.LedgerEntryAggregate) error {
	if _, err := r.collection.InsertOne(ctx, aggregate); err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	outboxEvents, err := r.toOutboxEvents(ctx, aggregate)
	if err != nil {
		return err
	}
	if len(outboxEvents) > 0 {
		if err := r.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
			return fmt.Errorf("failed to save outbox events: %w", err)
		}
	}

	aggregate.ClearDomainEvents()
	return nil
}

func (r *LedgerEntryRepository) toOutboxEvents(ctx context.Context, aggregate *domain.LedgerEntryAggregate) ([]*outbox.OutboxEvent, error) {
	domainEvents := aggregate.DomainEvents
	if len(domainEvents) == 0 {
		return nil, nil
	}

	entryID := aggregate.Entry.EntryID.String()
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))

	for _, event := range domainEvents {
		var cloudEvent *cloudevents.CloudEvent
		var topic string

		switch e := event.(type) {
		case *domain.LedgerEntryRecordedEvent:
			topic = kafka.Topics.LedgerEvents
			cloudEvent = r.eventFactory.CreateLedgerEntryRecordedEvent(ctx, cloudevents.LedgerEntryRecordedData{
				EntryID:        e.EntryID,
				ProductID:      e.ProductID,
				Action:         e.Action,
				ChangeAmount:   e.ChangeAmount,
				QuantityBefore: e.QuantityBefore,
				QuantityAfter:  e.QuantityAfter,
				ReferenceID:    e.ReferenceID,
				ReferenceType:  e.ReferenceType,
				PerformedBy:    e.PerformedBy,
				CreatedAt:      e.CreatedAt,
			})
		case *domain.StockLevelChangedEvent:
			topic = kafka.Topics.StockEvents
			cloudEvent = r.eventFactory.CreateStockLevelChangedEvent(ctx, cloudevents.StockLevelChangedData{
				ProductID:     e.ProductID,
				PreviousStock: e.PreviousStock,
				NewStock:      e.NewStock,
				Action:        e.Action,
				EntryID:       e.EntryID,
				ChangedAt:     e.ChangedAt,
			})
		default:
			continue
		}

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(entryID, "StockLedgerEntry", topic, cloudEvent)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	return outboxEvents, nil
}

// FindByEntryID retrieves one entry by its ledger entry ID
func (r *LedgerEntryRepository) FindByEntryID(ctx context.Context, entryID string) (*domain.LedgerEntryAggregate, error) {
	var aggregate domain.LedgerEntryAggregate
	err := r.collection.FindOne(ctx, bson.M{"entry.entryId": entryID}).Decode(&aggregate)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return &aggregate, nil
}

// FindByProduct retrieves entries for a product, newest first
func (r *LedgerEntryRepository) FindByProduct(ctx context.Context, productID string, limit, offset int) ([]*domain.LedgerEntryAggregate, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "entry.createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{"entry.productId": productID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var aggregates []*domain.LedgerEntryAggregate
	if err := cursor.All(ctx, &aggregates); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}
	return aggregates, nil
}

// FindByReference retrieves entries created by a given reference
func (r *LedgerEntryRepository) FindByReference(ctx context.Context, referenceID string) ([]*domain.LedgerEntryAggregate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "entry.createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"entry.referenceId": referenceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var aggregates []*domain.LedgerEntryAggregate
	if err := cursor.All(ctx, &aggregates); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}
	return aggregates, nil
}

// FindByTimeRange retrieves entries for a product within a time range
func (r *LedgerEntryRepository) FindByTimeRange(ctx context.Context, productID string, start, end time.Time) ([]*domain.LedgerEntryAggregate, error) {
	filter := bson.M{
		"entry.productId": productID,
		"entry.createdAt": bson.M{"$gte": start, "$lte": end},
	}
	opts := options.Find().SetSort(bson.D{{Key: "entry.createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var aggregates []*domain.LedgerEntryAggregate
	if err := cursor.All(ctx, &aggregates); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}
	return aggregates, nil
}
