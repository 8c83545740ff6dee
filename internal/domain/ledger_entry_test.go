package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func validInput() LedgerEntryInput {
	return LedgerEntryInput{
		ProductID:      "PRD-42",
		Action:         ActionManualAdjustment,
		ChangeAmount:   intPtr(-5),
		QuantityBefore: intPtr(20),
		QuantityAfter:  intPtr(15),
	}
}

func TestQuantityInvariantHolds(t *testing.T) {
	cases := []struct {
		before, change, after int
		want                  bool
	}{
		{20, -5, 15, true},
		{20, -5, 16, false},
		{0, 0, 0, true},
		{0, 10, 10, true},
		{10, -10, 0, true},
		{-3, 5, 2, true},
		{100, 1, 100, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, QuantityInvariantHolds(c.before, c.change, c.after),
			"before=%d change=%d after=%d", c.before, c.change, c.after)
	}
}

func TestNewStockLedgerEntry_Valid(t *testing.T) {
	entry, err := NewStockLedgerEntry(validInput(), "user1")
	require.NoError(t, err)

	assert.NotEmpty(t, entry.EntryID.String())
	assert.Equal(t, "PRD-42", entry.ProductID)
	assert.Equal(t, ActionManualAdjustment, entry.Action)
	assert.Equal(t, -5, entry.ChangeAmount)
	assert.Equal(t, 20, entry.QuantityBefore)
	assert.Equal(t, 15, entry.QuantityAfter)
	assert.Equal(t, "user1", entry.PerformedBy)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.True(t, entry.IsDecrease())
	assert.False(t, entry.IsIncrease())
}

func TestNewStockLedgerEntry_MissingFields(t *testing.T) {
	input := validInput()
	input.ProductID = ""
	_, err := NewStockLedgerEntry(input, "user1")
	assert.ErrorIs(t, err, ErrMissingProductID)

	input = validInput()
	input.Action = ""
	_, err = NewStockLedgerEntry(input, "user1")
	assert.ErrorIs(t, err, ErrMissingAction)

	input = validInput()
	input.ChangeAmount = nil
	_, err = NewStockLedgerEntry(input, "user1")
	assert.Error(t, err)

	input = validInput()
	input.QuantityBefore = nil
	_, err = NewStockLedgerEntry(input, "user1")
	assert.Error(t, err)

	input = validInput()
	input.QuantityAfter = nil
	_, err = NewStockLedgerEntry(input, "user1")
	assert.Error(t, err)

	_, err = NewStockLedgerEntry(validInput(), "")
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestNewStockLedgerEntry_InvalidAction(t *testing.T) {
	input := validInput()
	input.Action = Action("teleport")
	_, err := NewStockLedgerEntry(input, "user1")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestNewStockLedgerEntry_QuantityMismatch(t *testing.T) {
	input := validInput()
	input.QuantityAfter = intPtr(16)
	_, err := NewStockLedgerEntry(input, "user1")
	require.ErrorIs(t, err, ErrQuantityMismatch)
	assert.Contains(t, err.Error(), "20 + -5 != 16")
}

func TestAction_MutatesStock(t *testing.T) {
	mutating := []Action{
		ActionManualAdjustment, ActionQuickIncrease, ActionQuickDecrease,
		ActionBulkIncrease, ActionBulkDecrease,
	}
	for _, a := range mutating {
		assert.True(t, a.MutatesStock(), "%s should mutate stock", a)
		assert.True(t, a.IsValid())
	}

	logOnly := []Action{ActionSale, ActionSaleReturn, ActionPurchase, ActionTransfer}
	for _, a := range logOnly {
		assert.False(t, a.MutatesStock(), "%s should be log-only", a)
		assert.True(t, a.IsValid())
	}

	assert.False(t, Action("").IsValid())
	assert.False(t, Action("unknown").IsValid())
}

func TestProduct_NeedsStockWrite(t *testing.T) {
	entry, err := NewStockLedgerEntry(validInput(), "user1")
	require.NoError(t, err)

	product := &Product{ProductID: "PRD-42", StockQuantity: 20}
	assert.True(t, product.NeedsStockWrite(entry))

	// Already converged: no write needed
	product.StockQuantity = 15
	assert.False(t, product.NeedsStockWrite(entry))

	// Log-only actions never write, even when stock differs
	input := validInput()
	input.Action = ActionSale
	saleEntry, err := NewStockLedgerEntry(input, "user1")
	require.NoError(t, err)
	product.StockQuantity = 99
	assert.False(t, product.NeedsStockWrite(saleEntry))
}

func TestLedgerEntryAggregate_Events(t *testing.T) {
	entry, err := NewStockLedgerEntry(validInput(), "user1")
	require.NoError(t, err)

	agg := NewLedgerEntryAggregate(entry)
	agg.RecordStockWrite(20, 15)

	events := agg.PullEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "pos.ledger.entry-recorded", events[0].EventType())
	assert.Equal(t, "pos.ledger.stock-level-changed", events[1].EventType())

	stockEvent := events[1].(*StockLevelChangedEvent)
	assert.Equal(t, 20, stockEvent.PreviousStock)
	assert.Equal(t, 15, stockEvent.NewStock)

	// Pulled events are cleared
	assert.Empty(t, agg.PullEvents())
}

func TestNewBatchAuditRecord(t *testing.T) {
	record := NewBatchAuditRecord("user1", 3, 2, 1, map[string]any{"action": "manual_adjustment"})

	assert.Equal(t, AuditActionBulkCreate, record.Action)
	assert.Equal(t, AuditEntityLedgerBatch, record.EntityType)
	assert.Empty(t, record.EntityID)
	assert.Equal(t, "user1", record.PerformedBy)
	assert.Equal(t, 3, record.Metadata["total"])
	assert.Equal(t, 2, record.Metadata["successful"])
	assert.Equal(t, 1, record.Metadata["failed"])
	assert.Equal(t, "manual_adjustment", record.Metadata["action"])
}
