package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pos-platform/ledger-service/pkg/idempotency"
	outboxMongo "github.com/pos-platform/ledger-service/pkg/outbox/mongodb"
)

// Index bootstrapper for the ledger database. The repositories ensure their
// own indexes at startup, but a fresh deployment runs this first so index
// builds happen before the service takes traffic.

var (
	mongoURI = flag.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	dbName   = flag.String("db", "pos_ledger", "Database name")
	dryRun   = flag.Bool("dry-run", false, "List the indexes without creating them")
)

type collectionIndexes struct {
	collection string
	indexes    []mongo.IndexModel
}

func main() {
	flag.Parse()

	log.Printf("Starting ledger index migration...")
	log.Printf("MongoDB URI: %s", *mongoURI)
	log.Printf("Database: %s", *dbName)
	log.Printf("Dry Run: %v", *dryRun)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB successfully")

	db := client.Database(*dbName)

	if err := createIndexes(context.Background(), db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func createIndexes(ctx context.Context, db *mongo.Database) error {
	plan := []collectionIndexes{
		{
			collection: "ledger_entries",
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "entry.entryId", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "entry.productId", Value: 1}, {Key: "entry.createdAt", Value: -1}}},
				{Keys: bson.D{{Key: "entry.referenceId", Value: 1}}},
				{Keys: bson.D{{Key: "entry.action", Value: 1}}},
			},
		},
		{
			collection: "products",
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "productId", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			collection: "audit_records",
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "auditId", Value: 1}}},
				{Keys: bson.D{{Key: "performedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
				{Keys: bson.D{{Key: "entityType", Value: 1}, {Key: "entityId", Value: 1}}},
			},
		},
	}

	for _, p := range plan {
		log.Printf("Collection %s: %d indexes", p.collection, len(p.indexes))
		for _, idx := range p.indexes {
			log.Printf("  keys=%v", idx.Keys)
		}
		if *dryRun {
			continue
		}
		if _, err := db.Collection(p.collection).Indexes().CreateMany(ctx, p.indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", p.collection, err)
		}
	}

	// The outbox and idempotency packages own their index definitions
	if !*dryRun {
		if err := outboxMongo.NewOutboxRepository(db).EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to create outbox indexes: %w", err)
		}
		if err := idempotency.InitializeIndexes(ctx, db); err != nil {
			return fmt.Errorf("failed to create idempotency indexes: %w", err)
		}
	}
	log.Printf("Collection %s: package-managed indexes ensured", outboxMongo.DefaultCollectionName)

	if *dryRun {
		fmt.Println("\nDRY RUN MODE - no indexes were created")
		fmt.Println("Run with -dry-run=false to create them")
	}

	return nil
}
