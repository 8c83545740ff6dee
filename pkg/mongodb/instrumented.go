package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pos-platform/ledger-service/pkg/logging"
	"github.com/pos-platform/ledger-service/pkg/metrics"
)

// InstrumentedDatabase hands out collections that record operation latency
// metrics and query logs. Metrics and logger may be nil, in which case the
// collections behave like raw driver collections.
type InstrumentedDatabase struct {
	db      *mongo.Database
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewInstrumentedDatabase creates an InstrumentedDatabase
func NewInstrumentedDatabase(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *InstrumentedDatabase {
	return &InstrumentedDatabase{db: db, metrics: m, logger: logger}
}

// Collection returns an instrumented collection handle
func (d *InstrumentedDatabase) Collection(name string) *InstrumentedCollection {
	return &InstrumentedCollection{
		collection: d.db.Collection(name),
		name:       name,
		metrics:    d.metrics,
		logger:     d.logger,
	}
}

// Raw returns the underlying database handle
func (d *InstrumentedDatabase) Raw() *mongo.Database {
	return d.db
}

// Logger returns the logger the instrumented collections log through.
// May be nil.
func (d *InstrumentedDatabase) Logger() *logging.Logger {
	return d.logger
}

// InstrumentedCollection wraps the driver collection operations the ledger
// repositories use. Operations executed with a session context still join
// the active transaction; instrumentation only observes.
type InstrumentedCollection struct {
	collection *mongo.Collection
	name       string
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

func (c *InstrumentedCollection) observe(ctx context.Context, operation string, start time.Time, success bool, rows int64) {
	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordMongoDBOperation(c.name, operation, success, duration)
	}
	if c.logger != nil {
		c.logger.DatabaseQuery(ctx, c.name, operation, duration, success, rows)
	}
}

// InsertOne inserts a single document
func (c *InstrumentedCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	start := time.Now()
	result, err := c.collection.InsertOne(ctx, document, opts...)
	c.observe(ctx, "insertOne", start, err == nil, 1)
	return result, err
}

// InsertMany inserts multiple documents
func (c *InstrumentedCollection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	start := time.Now()
	result, err := c.collection.InsertMany(ctx, documents, opts...)
	c.observe(ctx, "insertMany", start, err == nil, int64(len(documents)))
	return result, err
}

// FindOne finds a single document. A missing document counts as a
// successful round trip.
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	start := time.Now()
	result := c.collection.FindOne(ctx, filter, opts...)
	err := result.Err()
	c.observe(ctx, "findOne", start, err == nil || err == mongo.ErrNoDocuments, 1)
	return result
}

// Find finds multiple documents
func (c *InstrumentedCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	start := time.Now()
	cursor, err := c.collection.Find(ctx, filter, opts...)
	c.observe(ctx, "find", start, err == nil, 0)
	return cursor, err
}

// UpdateOne updates a single document
func (c *InstrumentedCollection) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	start := time.Now()
	result, err := c.collection.UpdateOne(ctx, filter, update, opts...)
	var rows int64
	if result != nil {
		rows = result.ModifiedCount
	}
	c.observe(ctx, "updateOne", start, err == nil, rows)
	return result, err
}

// UpdateMany updates multiple documents
func (c *InstrumentedCollection) UpdateMany(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	start := time.Now()
	result, err := c.collection.UpdateMany(ctx, filter, update, opts...)
	var rows int64
	if result != nil {
		rows = result.ModifiedCount
	}
	c.observe(ctx, "updateMany", start, err == nil, rows)
	return result, err
}

// DeleteMany deletes multiple documents
func (c *InstrumentedCollection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	start := time.Now()
	result, err := c.collection.DeleteMany(ctx, filter, opts...)
	var rows int64
	if result != nil {
		rows = result.DeletedCount
	}
	c.observe(ctx, "deleteMany", start, err == nil, rows)
	return result, err
}

// CountDocuments counts documents matching the filter
func (c *InstrumentedCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	start := time.Now()
	count, err := c.collection.CountDocuments(ctx, filter, opts...)
	c.observe(ctx, "countDocuments", start, err == nil, count)
	return count, err
}

// Indexes returns the collection's index view
func (c *InstrumentedCollection) Indexes() mongo.IndexView {
	return c.collection.Indexes()
}

// Name returns the collection name
func (c *InstrumentedCollection) Name() string {
	return c.name
}

// Raw returns the underlying driver collection
func (c *InstrumentedCollection) Raw() *mongo.Collection {
	return c.collection
}
