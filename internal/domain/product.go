package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the catalog entity whose stock level the ledger tracks.
// It is referenced, not owned: the ledger only reads it and converges its
// stock quantity for direct-adjustment actions.
type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ProductID     string             `bson:"productId" json:"productId"`
	Name          string             `bson:"name" json:"name"`
	Price         int64              `bson:"price" json:"price"` // cents
	StockQuantity int                `bson:"stockQuantity" json:"stockQuantity"`
	Deleted       bool               `bson:"deleted" json:"deleted"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// StockUpdate describes one applied stock mutation for bulk reporting
type StockUpdate struct {
	ProductID     string `json:"productId"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	StockChange   int    `json:"stockChange"`
}

// NeedsStockWrite reports whether recording the entry should write the
// product's stock. The assignment is convergent: the product is set to the
// entry's quantityAfter rather than incremented, so a delta that is already
// reflected is not applied twice.
func (p *Product) NeedsStockWrite(entry StockLedgerEntry) bool {
	return entry.Action.MutatesStock() && p.StockQuantity != entry.QuantityAfter
}
