package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// LedgerEntryID represents a unique identifier for a stock ledger entry
type LedgerEntryID struct {
	value string
}

// NewLedgerEntryID creates a new unique ledger entry ID
func NewLedgerEntryID() LedgerEntryID {
	timestamp := time.Now().UTC().Format("20060102150405")
	return LedgerEntryID{
		value: fmt.Sprintf("SLE-%s-%s", timestamp, uuid.New().String()[:8]),
	}
}

// ParseLedgerEntryID parses a string into a LedgerEntryID
func ParseLedgerEntryID(s string) (LedgerEntryID, error) {
	if s == "" {
		return LedgerEntryID{}, errors.New("ledger entry ID cannot be empty")
	}
	return LedgerEntryID{value: s}, nil
}

// String returns the string representation
func (id LedgerEntryID) String() string {
	return id.value
}

// MarshalBSONValue implements bson.ValueMarshaler
func (id LedgerEntryID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(id.value)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (id *LedgerEntryID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	return bson.UnmarshalValue(t, data, &id.value)
}

// QuantityInvariantHolds reports whether a (before, change, after) triple is
// arithmetically consistent. Stock units are integers, so the check is exact.
func QuantityInvariantHolds(before, change, after int) bool {
	return before+change == after
}

// StockLedgerEntry is one immutable record of a single stock-quantity change.
// Entries are append-only: once persisted they are never mutated or deleted.
type StockLedgerEntry struct {
	EntryID        LedgerEntryID `bson:"entryId" json:"entryId"`
	ProductID      string        `bson:"productId" json:"productId"`
	Action         Action        `bson:"action" json:"action"`
	ChangeAmount   int           `bson:"changeAmount" json:"changeAmount"`
	QuantityBefore int           `bson:"quantityBefore" json:"quantityBefore"`
	QuantityAfter  int           `bson:"quantityAfter" json:"quantityAfter"`
	PriceBefore    *int64        `bson:"priceBefore,omitempty" json:"priceBefore,omitempty"` // cents
	PriceAfter     *int64        `bson:"priceAfter,omitempty" json:"priceAfter,omitempty"`   // cents
	ReferenceID    string        `bson:"referenceId,omitempty" json:"referenceId,omitempty"`
	ReferenceType  string        `bson:"referenceType,omitempty" json:"referenceType,omitempty"`
	PerformedBy    string        `bson:"performedBy" json:"performedBy"`
	Notes          string        `bson:"notes,omitempty" json:"notes,omitempty"`
	LocationID     string        `bson:"locationId,omitempty" json:"locationId,omitempty"`
	BatchNumber    string        `bson:"batchNumber,omitempty" json:"batchNumber,omitempty"`
	ExpiryDate     *time.Time    `bson:"expiryDate,omitempty" json:"expiryDate,omitempty"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
}

// LedgerEntryInput carries the caller-supplied fields for a new entry.
// Quantity fields are pointers so an absent value is distinguishable from an
// explicit zero.
type LedgerEntryInput struct {
	ProductID      string
	Action         Action
	ChangeAmount   *int
	QuantityBefore *int
	QuantityAfter  *int
	PriceBefore    *int64
	PriceAfter     *int64
	ReferenceID    string
	ReferenceType  string
	Notes          string
	LocationID     string
	BatchNumber    string
	ExpiryDate     *time.Time
}

// NewStockLedgerEntry validates the input and builds an entry ready for
// persistence. Checks run in order: field completeness, action membership,
// then the quantity invariant. On failure nothing downstream may run.
func NewStockLedgerEntry(input LedgerEntryInput, performedBy string) (StockLedgerEntry, error) {
	if input.ProductID == "" {
		return StockLedgerEntry{}, ErrMissingProductID
	}
	if input.Action == "" {
		return StockLedgerEntry{}, ErrMissingAction
	}
	if input.ChangeAmount == nil {
		return StockLedgerEntry{}, errors.New("change amount is required")
	}
	if input.QuantityBefore == nil {
		return StockLedgerEntry{}, errors.New("quantity before is required")
	}
	if input.QuantityAfter == nil {
		return StockLedgerEntry{}, errors.New("quantity after is required")
	}
	if performedBy == "" {
		return StockLedgerEntry{}, ErrMissingActor
	}
	if !input.Action.IsValid() {
		return StockLedgerEntry{}, fmt.Errorf("%w: %q", ErrInvalidAction, input.Action)
	}
	if !QuantityInvariantHolds(*input.QuantityBefore, *input.ChangeAmount, *input.QuantityAfter) {
		return StockLedgerEntry{}, fmt.Errorf("%w: %d + %d != %d",
			ErrQuantityMismatch, *input.QuantityBefore, *input.ChangeAmount, *input.QuantityAfter)
	}

	return StockLedgerEntry{
		EntryID:        NewLedgerEntryID(),
		ProductID:      input.ProductID,
		Action:         input.Action,
		ChangeAmount:   *input.ChangeAmount,
		QuantityBefore: *input.QuantityBefore,
		QuantityAfter:  *input.QuantityAfter,
		PriceBefore:    input.PriceBefore,
		PriceAfter:     input.PriceAfter,
		ReferenceID:    input.ReferenceID,
		ReferenceType:  input.ReferenceType,
		PerformedBy:    performedBy,
		Notes:          input.Notes,
		LocationID:     input.LocationID,
		BatchNumber:    input.BatchNumber,
		ExpiryDate:     input.ExpiryDate,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// IsIncrease returns true if the entry adds stock
func (e StockLedgerEntry) IsIncrease() bool {
	return e.ChangeAmount > 0
}

// IsDecrease returns true if the entry removes stock
func (e StockLedgerEntry) IsDecrease() bool {
	return e.ChangeAmount < 0
}
