package application

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos-platform/ledger-service/internal/domain"
	"github.com/pos-platform/ledger-service/pkg/cloudevents"
	"github.com/pos-platform/ledger-service/pkg/errors"
	"github.com/pos-platform/ledger-service/pkg/logging"
)

type fakeEntryRepo struct {
	saved   []*domain.LedgerEntryAggregate
	byID    map[string]*domain.LedgerEntryAggregate
	saveErr error
	findErr error
}

func (f *fakeEntryRepo) Save(ctx context.Context, agg *domain.LedgerEntryAggregate) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.byID == nil {
		f.byID = make(map[string]*domain.LedgerEntryAggregate)
	}
	f.saved = append(f.saved, agg)
	f.byID[agg.Entry.EntryID.String()] = agg
	return nil
}

func (f *fakeEntryRepo) FindByEntryID(ctx context.Context, entryID string) (*domain.LedgerEntryAggregate, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	agg, ok := f.byID[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return agg, nil
}

func (f *fakeEntryRepo) FindByProduct(ctx context.Context, productID string, limit, offset int) ([]*domain.LedgerEntryAggregate, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	results := make([]*domain.LedgerEntryAggregate, 0)
	for _, agg := range f.saved {
		if agg.Entry.ProductID == productID {
			results = append(results, agg)
		}
	}
	return results, nil
}

func (f *fakeEntryRepo) FindByReference(ctx context.Context, referenceID string) ([]*domain.LedgerEntryAggregate, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	results := make([]*domain.LedgerEntryAggregate, 0)
	for _, agg := range f.saved {
		if agg.Entry.ReferenceID == referenceID {
			results = append(results, agg)
		}
	}
	return results, nil
}

func (f *fakeEntryRepo) FindByTimeRange(ctx context.Context, productID string, start, end time.Time) ([]*domain.LedgerEntryAggregate, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	results := make([]*domain.LedgerEntryAggregate, 0)
	for _, agg := range f.saved {
		if agg.Entry.ProductID == productID && !agg.Entry.CreatedAt.Before(start) && !agg.Entry.CreatedAt.After(end) {
			results = append(results, agg)
		}
	}
	return results, nil
}

type stockWrite struct {
	productID     string
	expectedStock int
	newStock      int
}

type fakeProductRepo struct {
	products  map[string]*domain.Product
	findErr   error
	updateErr error
	writes    []stockWrite
}

func (f *fakeProductRepo) FindByID(ctx context.Context, productID string) (*domain.Product, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	product, ok := f.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (f *fakeProductRepo) UpdateStock(ctx context.Context, productID string, expectedStock, newStock int, at time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	product, ok := f.products[productID]
	if !ok || product.StockQuantity != expectedStock {
		return domain.ErrStockConflict
	}
	product.StockQuantity = newStock
	f.writes = append(f.writes, stockWrite{productID, expectedStock, newStock})
	return nil
}

type fakeAuditRecorder struct {
	records   []domain.AuditRecord
	recordErr error
}

func (f *fakeAuditRecorder) Record(ctx context.Context, record domain.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, record)
	return nil
}

type fakeUnitOfWork struct {
	txErr error
	calls int
}

func (f *fakeUnitOfWork) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	f.calls++
	return fn(ctx)
}

type fakePublisher struct {
	published  []*cloudevents.CloudEvent
	publishErr error
}

func (f *fakePublisher) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, event)
	return nil
}

type testFixture struct {
	service   *LedgerApplicationService
	entries   *fakeEntryRepo
	products  *fakeProductRepo
	audit     *fakeAuditRecorder
	uow       *fakeUnitOfWork
	publisher *fakePublisher
}

func newFixture() *testFixture {
	f := &testFixture{
		entries: &fakeEntryRepo{},
		products: &fakeProductRepo{products: map[string]*domain.Product{
			"PRD-1": {ProductID: "PRD-1", Name: "Espresso Beans", Price: 1250, StockQuantity: 20},
			"PRD-2": {ProductID: "PRD-2", Name: "Filter Paper", Price: 300, StockQuantity: 5},
			"PRD-GONE": {ProductID: "PRD-GONE", Name: "Discontinued", Price: 100, StockQuantity: 0, Deleted: true},
		}},
		audit:     &fakeAuditRecorder{},
		uow:       &fakeUnitOfWork{},
		publisher: &fakePublisher{},
	}

	logConfig := logging.DefaultConfig("ledger-service-test")
	logConfig.Output = io.Discard

	f.service = NewLedgerApplicationService(
		f.entries,
		f.products,
		f.audit,
		f.uow,
		f.publisher,
		cloudevents.NewEventFactory(cloudevents.SourceLedger),
		nil,
		logging.New(logConfig),
		time.Minute,
	)
	return f
}

func adjustmentCmd(productID string, before, change int) RecordEntryCommand {
	after := before + change
	return RecordEntryCommand{
		ProductID:      productID,
		Action:         "manual_adjustment",
		ChangeAmount:   &change,
		QuantityBefore: &before,
		QuantityAfter:  &after,
		PerformedBy:    "clerk-7",
	}
}

func TestRecordEntry_WritesStockWhenDiverged(t *testing.T) {
	f := newFixture()

	result, err := f.service.RecordEntry(context.Background(), adjustmentCmd("PRD-1", 20, -5))
	require.NoError(t, err)

	require.NotNil(t, result.StockUpdate)
	assert.Equal(t, 20, result.StockUpdate.PreviousStock)
	assert.Equal(t, 15, result.StockUpdate.NewStock)
	assert.Equal(t, -5, result.StockUpdate.StockChange)
	assert.Equal(t, 15, f.products.products["PRD-1"].StockQuantity)

	require.Len(t, f.entries.saved, 1)
	assert.Equal(t, 1, f.uow.calls)
	require.Len(t, f.products.writes, 1)
	assert.Equal(t, stockWrite{"PRD-1", 20, 15}, f.products.writes[0])

	// Entry and stock events queued before the transactional save
	events := f.entries.saved[0].DomainEvents
	require.Len(t, events, 2)
	assert.Equal(t, "pos.ledger.entry-recorded", events[0].EventType())
	assert.Equal(t, "pos.ledger.stock-level-changed", events[1].EventType())

	require.Len(t, f.audit.records, 1)
	assert.Equal(t, domain.AuditActionCreate, f.audit.records[0].Action)
	assert.Equal(t, result.Entry.EntryID, f.audit.records[0].EntityID)
}

func TestRecordEntry_LogOnlyActionSkipsStockWrite(t *testing.T) {
	f := newFixture()

	cmd := adjustmentCmd("PRD-1", 20, -3)
	cmd.Action = "sale"
	cmd.ReferenceID = "SALE-100"
	cmd.ReferenceType = "sale"

	result, err := f.service.RecordEntry(context.Background(), cmd)
	require.NoError(t, err)

	assert.Nil(t, result.StockUpdate)
	assert.Empty(t, f.products.writes)
	assert.Equal(t, 20, f.products.products["PRD-1"].StockQuantity)
	require.Len(t, f.entries.saved, 1)
	require.Len(t, f.entries.saved[0].DomainEvents, 1)
}

func TestRecordEntry_ConvergedStockSkipsWrite(t *testing.T) {
	f := newFixture()
	f.products.products["PRD-1"].StockQuantity = 15

	result, err := f.service.RecordEntry(context.Background(), adjustmentCmd("PRD-1", 20, -5))
	require.NoError(t, err)

	assert.Nil(t, result.StockUpdate)
	assert.Empty(t, f.products.writes)
	require.Len(t, f.entries.saved, 1)
}

func TestRecordEntry_InvariantViolationLeavesNoSideEffects(t *testing.T) {
	f := newFixture()

	change := -5
	before := 20
	after := 16 // 20 + -5 != 16
	cmd := RecordEntryCommand{
		ProductID:      "PRD-1",
		Action:         "manual_adjustment",
		ChangeAmount:   &change,
		QuantityBefore: &before,
		QuantityAfter:  &after,
		PerformedBy:    "clerk-7",
	}

	_, err := f.service.RecordEntry(context.Background(), cmd)
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)

	assert.Empty(t, f.entries.saved)
	assert.Empty(t, f.products.writes)
	assert.Empty(t, f.audit.records)
	assert.Equal(t, 0, f.uow.calls)
}

func TestRecordEntry_ProductNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.service.RecordEntry(context.Background(), adjustmentCmd("PRD-404", 20, -5))
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeNotFound, appErr.Code)
	assert.Empty(t, f.entries.saved)
}

func TestRecordEntry_DeletedProductRejected(t *testing.T) {
	f := newFixture()

	_, err := f.service.RecordEntry(context.Background(), adjustmentCmd("PRD-GONE", 0, 10))
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)
	assert.Empty(t, f.entries.saved)
}

func TestRecordEntry_StockConflict(t *testing.T) {
	f := newFixture()
	f.products.updateErr = domain.ErrStockConflict

	_, err := f.service.RecordEntry(context.Background(), adjustmentCmd("PRD-1", 20, -5))
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeConflict, appErr.Code)

	// Stock write failed inside the transaction, so the entry was never saved
	assert.Empty(t, f.entries.saved)
	assert.Empty(t, f.audit.records)
}

func TestRecordEntry_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture()
	f.audit.recordErr = context.DeadlineExceeded

	result, err := f.service.RecordEntry(context.Background(), adjustmentCmd("PRD-1", 20, -5))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, f.entries.saved, 1)
	assert.Equal(t, 15, f.products.products["PRD-1"].StockQuantity)
}

func TestRecordBulk_PerEntryIsolation(t *testing.T) {
	f := newFixture()

	good1 := adjustmentCmd("PRD-1", 20, -5)
	bad := adjustmentCmd("PRD-404", 10, 1)
	good2 := adjustmentCmd("PRD-2", 5, 10)

	cmd := RecordBulkCommand{
		Entries: []BulkEntryItem{
			toBulkItem(good1),
			toBulkItem(bad),
			toBulkItem(good2),
		},
		PerformedBy: "clerk-7",
	}

	result, err := f.service.RecordBulk(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 2, result.Summary.SuccessfulCount)
	assert.Equal(t, 1, result.Summary.FailedCount)
	assert.InDelta(t, 66.66, result.Summary.SuccessRate, 0.1)

	// Every input lands in exactly one partition
	assert.Equal(t, result.Summary.Total, len(result.Successful)+len(result.Failed))

	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Equal(t, "PRD-404", result.Failed[0].ProductID)
	assert.NotEmpty(t, result.Failed[0].Reason)

	// The failed entry did not block the later one
	assert.Equal(t, 15, f.products.products["PRD-1"].StockQuantity)
	assert.Equal(t, 15, f.products.products["PRD-2"].StockQuantity)
	require.Len(t, f.entries.saved, 2)
}

func TestRecordBulk_AppliesOverrides(t *testing.T) {
	f := newFixture()

	item := toBulkItem(adjustmentCmd("PRD-1", 20, 5))
	item.Action = "quick_increase"
	item.Notes = "per-entry note"

	cmd := RecordBulkCommand{
		Entries: []BulkEntryItem{item},
		Overrides: BulkOverrides{
			Action:        "bulk_increase",
			ReferenceID:   "RESTOCK-42",
			ReferenceType: "restock",
		},
		PerformedBy: "clerk-7",
	}

	result, err := f.service.RecordBulk(context.Background(), cmd)
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)

	entry := result.Successful[0]
	assert.Equal(t, "bulk_increase", entry.Action)
	assert.Equal(t, "RESTOCK-42", entry.ReferenceID)
	assert.Equal(t, "restock", entry.ReferenceType)
	// Fields without an override keep their per-entry values
	assert.Equal(t, "per-entry note", entry.Notes)
}

func TestRecordBulk_EmptyBatchRejected(t *testing.T) {
	f := newFixture()

	_, err := f.service.RecordBulk(context.Background(), RecordBulkCommand{PerformedBy: "clerk-7"})
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)
}

func TestRecordBulk_SingleBatchAuditAndEvent(t *testing.T) {
	f := newFixture()

	cmd := RecordBulkCommand{
		Entries: []BulkEntryItem{
			toBulkItem(adjustmentCmd("PRD-1", 20, -5)),
			toBulkItem(adjustmentCmd("PRD-2", 5, 2)),
		},
		PerformedBy: "clerk-7",
	}

	result, err := f.service.RecordBulk(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Summary.SuccessRate)

	// One summary audit record for the batch, not one per entry
	require.Len(t, f.audit.records, 1)
	record := f.audit.records[0]
	assert.Equal(t, domain.AuditActionBulkCreate, record.Action)
	assert.Equal(t, domain.AuditEntityLedgerBatch, record.EntityType)
	assert.Equal(t, 2, record.Metadata["total"])
	assert.Equal(t, 2, record.Metadata["successful"])
	assert.Equal(t, 0, record.Metadata["failed"])

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, cloudevents.BulkBatchCompleted, f.publisher.published[0].Type)
}

func TestRecordBulk_TimeoutFailsRemainingEntries(t *testing.T) {
	f := newFixture()

	logConfig := logging.DefaultConfig("ledger-service-test")
	logConfig.Output = io.Discard

	// A batch timeout that expires before the first entry is processed
	service := NewLedgerApplicationService(
		f.entries,
		f.products,
		f.audit,
		f.uow,
		f.publisher,
		cloudevents.NewEventFactory(cloudevents.SourceLedger),
		nil,
		logging.New(logConfig),
		time.Nanosecond,
	)

	cmd := RecordBulkCommand{
		Entries: []BulkEntryItem{
			toBulkItem(adjustmentCmd("PRD-1", 20, -5)),
			toBulkItem(adjustmentCmd("PRD-2", 5, 2)),
		},
		PerformedBy: "clerk-7",
	}

	result, err := service.RecordBulk(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Summary.Total)
	assert.Equal(t, 0, result.Summary.SuccessfulCount)
	assert.Equal(t, 2, result.Summary.FailedCount)
	assert.Equal(t, result.Summary.Total, len(result.Successful)+len(result.Failed))

	for i, failure := range result.Failed {
		assert.Equal(t, i, failure.Index)
		assert.Equal(t, "batch timed out", failure.Reason)
	}

	// Nothing was committed after expiry
	assert.Empty(t, f.entries.saved)
	assert.Empty(t, f.products.writes)

	// The summary audit record and completion event still go out on a
	// detached context even though the batch context has expired
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, domain.AuditActionBulkCreate, f.audit.records[0].Action)
	assert.Equal(t, 2, f.audit.records[0].Metadata["failed"])
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, cloudevents.BulkBatchCompleted, f.publisher.published[0].Type)
}

func TestGetEntry_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.service.GetEntry(context.Background(), GetEntryQuery{EntryID: "SLE-unknown"})
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeNotFound, appErr.Code)
}

func TestGetEntriesByTimeRange_InvalidWindow(t *testing.T) {
	f := newFixture()

	now := time.Now()
	_, err := f.service.GetEntriesByTimeRange(context.Background(), GetEntriesByTimeRangeQuery{
		ProductID: "PRD-1",
		Start:     now,
		End:       now.Add(-time.Hour),
	})
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)
}

func TestGetProductStock(t *testing.T) {
	f := newFixture()

	dto, err := f.service.GetProductStock(context.Background(), GetProductStockQuery{ProductID: "PRD-1"})
	require.NoError(t, err)
	assert.Equal(t, "PRD-1", dto.ProductID)
	assert.Equal(t, 20, dto.StockQuantity)
	assert.False(t, dto.Deleted)
}

func toBulkItem(cmd RecordEntryCommand) BulkEntryItem {
	return BulkEntryItem{
		ProductID:      cmd.ProductID,
		Action:         cmd.Action,
		ChangeAmount:   cmd.ChangeAmount,
		QuantityBefore: cmd.QuantityBefore,
		QuantityAfter:  cmd.QuantityAfter,
		ReferenceID:    cmd.ReferenceID,
		ReferenceType:  cmd.ReferenceType,
		Notes:          cmd.Notes,
	}
}
