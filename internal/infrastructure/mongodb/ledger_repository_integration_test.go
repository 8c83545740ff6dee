package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pos-platform/ledger-service/internal/domain"
	"github.com/pos-platform/ledger-service/pkg/cloudevents"
	platformMongo "github.com/pos-platform/ledger-service/pkg/mongodb"
	pkgtesting "github.com/pos-platform/ledger-service/pkg/testing"
)

type LedgerRepositoryIntegrationTestSuite struct {
	suite.Suite
	mongoContainer *pkgtesting.MongoDBContainer
	client         *mongo.Client
	db             *mongo.Database
	entryRepo      *LedgerEntryRepository
	productRepo    *ProductRepository
	auditRepo      *AuditRepository
	uow            *UnitOfWork
	ctx            context.Context
}

func (s *LedgerRepositoryIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := pkgtesting.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.mongoContainer = container

	client, err := container.GetClient(s.ctx)
	s.Require().NoError(err)
	s.client = client

	s.db = client.Database("ledger_test")
	instrumentedDB := platformMongo.NewInstrumentedDatabase(s.db, nil, nil)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceLedger)
	s.entryRepo = NewLedgerEntryRepository(instrumentedDB, eventFactory)
	s.productRepo = NewProductRepository(instrumentedDB)
	s.auditRepo = NewAuditRepository(instrumentedDB)
	s.uow = NewUnitOfWork(client)
}

func (s *LedgerRepositoryIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Disconnect(s.ctx)
	}
	if s.mongoContainer != nil {
		s.Require().NoError(s.mongoContainer.Close(s.ctx))
	}
}

func (s *LedgerRepositoryIntegrationTestSuite) TearDownTest() {
	s.db.Collection("ledger_entries").Drop(s.ctx)
	s.db.Collection("products").Drop(s.ctx)
	s.db.Collection("audit_records").Drop(s.ctx)
	s.db.Collection("outbox_events").Drop(s.ctx)
}

func TestLedgerRepositoryIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	suite.Run(t, new(LedgerRepositoryIntegrationTestSuite))
}

func (s *LedgerRepositoryIntegrationTestSuite) seedProduct(productID string, stock int) {
	_, err := s.db.Collection("products").InsertOne(s.ctx, domain.Product{
		ProductID:     productID,
		Name:          "Test Product",
		Price:         999,
		StockQuantity: stock,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})
	s.Require().NoError(err)
}

func (s *LedgerRepositoryIntegrationTestSuite) newEntry(productID string, before, change int) domain.StockLedgerEntry {
	after := before + change
	entry, err := domain.NewStockLedgerEntry(domain.LedgerEntryInput{
		ProductID:      productID,
		Action:         domain.ActionManualAdjustment,
		ChangeAmount:   &change,
		QuantityBefore: &before,
		QuantityAfter:  &after,
	}, "tester")
	s.Require().NoError(err)
	return entry
}

func (s *LedgerRepositoryIntegrationTestSuite) TestSave_PersistsEntryAndOutboxEvents() {
	entry := s.newEntry("PRD-1", 20, -5)
	aggregate := domain.NewLedgerEntryAggregate(entry)
	aggregate.RecordStockWrite(20, 15)

	err := s.entryRepo.Save(s.ctx, aggregate)
	s.Require().NoError(err)
	s.Empty(aggregate.DomainEvents)

	retrieved, err := s.entryRepo.FindByEntryID(s.ctx, entry.EntryID.String())
	s.Require().NoError(err)
	s.Equal("PRD-1", retrieved.Entry.ProductID)
	s.Equal(-5, retrieved.Entry.ChangeAmount)
	s.Equal(domain.ActionManualAdjustment, retrieved.Entry.Action)

	// Both domain events landed in the outbox
	count, err := s.db.Collection("outbox_events").CountDocuments(s.ctx, bson.M{"aggregateId": entry.EntryID.String()})
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestFindByEntryID_NotFound() {
	_, err := s.entryRepo.FindByEntryID(s.ctx, "SLE-unknown")
	s.Require().ErrorIs(err, domain.ErrEntryNotFound)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestFindByProduct_NewestFirst() {
	for i := 0; i < 3; i++ {
		aggregate := domain.NewLedgerEntryAggregate(s.newEntry("PRD-1", 10+i, 1))
		s.Require().NoError(s.entryRepo.Save(s.ctx, aggregate))
		time.Sleep(5 * time.Millisecond)
	}
	other := domain.NewLedgerEntryAggregate(s.newEntry("PRD-2", 1, 1))
	s.Require().NoError(s.entryRepo.Save(s.ctx, other))

	entries, err := s.entryRepo.FindByProduct(s.ctx, "PRD-1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.True(entries[0].Entry.CreatedAt.After(entries[2].Entry.CreatedAt) ||
		entries[0].Entry.CreatedAt.Equal(entries[2].Entry.CreatedAt))

	// Pagination
	page, err := s.entryRepo.FindByProduct(s.ctx, "PRD-1", 2, 2)
	s.Require().NoError(err)
	s.Len(page, 1)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestFindByReference() {
	change, before, after := 2, 0, 2
	entry, err := domain.NewStockLedgerEntry(domain.LedgerEntryInput{
		ProductID:      "PRD-1",
		Action:         domain.ActionPurchase,
		ChangeAmount:   &change,
		QuantityBefore: &before,
		QuantityAfter:  &after,
		ReferenceID:    "PO-77",
		ReferenceType:  "purchase",
	}, "tester")
	s.Require().NoError(err)
	s.Require().NoError(s.entryRepo.Save(s.ctx, domain.NewLedgerEntryAggregate(entry)))

	entries, err := s.entryRepo.FindByReference(s.ctx, "PO-77")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("PO-77", entries[0].Entry.ReferenceID)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestUpdateStock_ConditionalWrite() {
	s.seedProduct("PRD-1", 20)

	err := s.productRepo.UpdateStock(s.ctx, "PRD-1", 20, 15, time.Now().UTC())
	s.Require().NoError(err)

	product, err := s.productRepo.FindByID(s.ctx, "PRD-1")
	s.Require().NoError(err)
	s.Equal(15, product.StockQuantity)

	// Stale expected value surfaces as a conflict, stock unchanged
	err = s.productRepo.UpdateStock(s.ctx, "PRD-1", 20, 10, time.Now().UTC())
	s.Require().ErrorIs(err, domain.ErrStockConflict)

	product, err = s.productRepo.FindByID(s.ctx, "PRD-1")
	s.Require().NoError(err)
	s.Equal(15, product.StockQuantity)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestFindByID_NotFound() {
	_, err := s.productRepo.FindByID(s.ctx, "PRD-404")
	s.Require().ErrorIs(err, domain.ErrProductNotFound)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestTransaction_RollsBackEntryOnStockConflict() {
	s.seedProduct("PRD-1", 20)

	entry := s.newEntry("PRD-1", 20, -5)
	aggregate := domain.NewLedgerEntryAggregate(entry)

	err := s.uow.WithinTransaction(s.ctx, func(txCtx context.Context) error {
		// Stale expected stock: the conditional write fails
		if err := s.productRepo.UpdateStock(txCtx, "PRD-1", 99, 15, time.Now().UTC()); err != nil {
			return err
		}
		return s.entryRepo.Save(txCtx, aggregate)
	})
	s.Require().ErrorIs(err, domain.ErrStockConflict)

	// Nothing committed
	count, err := s.db.Collection("ledger_entries").CountDocuments(s.ctx, bson.M{})
	s.Require().NoError(err)
	s.Equal(int64(0), count)

	outboxCount, err := s.db.Collection("outbox_events").CountDocuments(s.ctx, bson.M{})
	s.Require().NoError(err)
	s.Equal(int64(0), outboxCount)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestTransaction_CommitsEntryAndStockTogether() {
	s.seedProduct("PRD-1", 20)

	entry := s.newEntry("PRD-1", 20, -5)
	aggregate := domain.NewLedgerEntryAggregate(entry)

	err := s.uow.WithinTransaction(s.ctx, func(txCtx context.Context) error {
		if err := s.productRepo.UpdateStock(txCtx, "PRD-1", 20, 15, time.Now().UTC()); err != nil {
			return err
		}
		aggregate.RecordStockWrite(20, 15)
		return s.entryRepo.Save(txCtx, aggregate)
	})
	s.Require().NoError(err)

	product, err := s.productRepo.FindByID(s.ctx, "PRD-1")
	s.Require().NoError(err)
	s.Equal(15, product.StockQuantity)

	retrieved, err := s.entryRepo.FindByEntryID(s.ctx, entry.EntryID.String())
	s.Require().NoError(err)
	s.Equal(15, retrieved.Entry.QuantityAfter)
}

func (s *LedgerRepositoryIntegrationTestSuite) TestAuditRecord_Insert() {
	record := domain.NewAuditRecord(domain.AuditActionCreate, domain.AuditEntityLedgerEntry, "SLE-1", "tester", nil)
	s.Require().NoError(s.auditRepo.Record(s.ctx, record))

	count, err := s.db.Collection("audit_records").CountDocuments(s.ctx, bson.M{"auditId": record.AuditID})
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}
