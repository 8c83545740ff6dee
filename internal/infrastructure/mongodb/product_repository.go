package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pos-platform/ledger-service/internal/domain"
	platformMongo "github.com/pos-platform/ledger-service/pkg/mongodb"
)

// ProductRepository reads and conditionally updates the product collection.
// The ledger never creates or deletes products; it only converges their
// current stock toward recorded entries.
type ProductRepository struct {
	collection *platformMongo.InstrumentedCollection
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *platformMongo.InstrumentedDatabase) *ProductRepository {
	repo := &ProductRepository{
		collection: db.Collection("products"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ProductRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "productId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// FindByID retrieves a product by its product ID, including soft-deleted ones
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	err := r.collection.FindOne(ctx, bson.M{"productId": productID}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return &product, nil
}

// UpdateStock conditionally sets the product's stock quantity. The filter
// matches only when the stored stock still equals expectedStock, so a
// concurrent change makes the write a no-op and surfaces as ErrStockConflict.
func (r *ProductRepository) UpdateStock(ctx context.Context, productID string, expectedStock, newStock int, at time.Time) error {
	filter := bson.M{
		"productId":     productID,
		"stockQuantity": expectedStock,
	}
	update := bson.M{
		"$set": bson.M{
			"stockQuantity": newStock,
			"updatedAt":     at,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrStockConflict
	}
	return nil
}
