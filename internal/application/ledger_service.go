package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/pos-platform/ledger-service/internal/domain"
	"github.com/pos-platform/ledger-service/pkg/cloudevents"
	"github.com/pos-platform/ledger-service/pkg/errors"
	"github.com/pos-platform/ledger-service/pkg/logging"
	"github.com/pos-platform/ledger-service/pkg/metrics"
)

// LedgerEventsTopic is the Kafka topic carrying ledger domain events
const LedgerEventsTopic = "pos.ledger.events"

// DefaultBulkTimeout bounds how long a bulk batch may run before the
// remaining entries are rejected
const DefaultBulkTimeout = 2 * time.Minute

const defaultQueryLimit = 50
const maxQueryLimit = 500

// EventPublisher publishes CloudEvents outside the outbox path. Satisfied by
// kafka.InstrumentedProducer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}

// LedgerApplicationService handles stock ledger use cases
type LedgerApplicationService struct {
	entryRepo     domain.LedgerEntryRepository
	productRepo   domain.ProductRepository
	auditRecorder domain.AuditRecorder
	uow           domain.UnitOfWork
	producer      EventPublisher
	eventFactory  *cloudevents.EventFactory
	metrics       *metrics.Metrics
	logger        *logging.Logger
	bulkTimeout   time.Duration
}

// NewLedgerApplicationService creates a new LedgerApplicationService
func NewLedgerApplicationService(
	entryRepo domain.LedgerEntryRepository,
	productRepo domain.ProductRepository,
	auditRecorder domain.AuditRecorder,
	uow domain.UnitOfWork,
	producer EventPublisher,
	eventFactory *cloudevents.EventFactory,
	m *metrics.Metrics,
	logger *logging.Logger,
	bulkTimeout time.Duration,
) *LedgerApplicationService {
	if bulkTimeout <= 0 {
		bulkTimeout = DefaultBulkTimeout
	}
	return &LedgerApplicationService{
		entryRepo:     entryRepo,
		productRepo:   productRepo,
		auditRecorder: auditRecorder,
		uow:           uow,
		producer:      producer,
		eventFactory:  eventFactory,
		metrics:       m,
		logger:        logger,
		bulkTimeout:   bulkTimeout,
	}
}

// RecordEntry validates and persists a single ledger entry. The entry insert
// and any product stock write commit in one transaction; a failure anywhere
// leaves no side effects. The audit trail is written after commit and never
// affects the outcome.
func (s *LedgerApplicationService) RecordEntry(ctx context.Context, cmd RecordEntryCommand) (*RecordEntryResultDTO, error) {
	result, err := s.recordOne(ctx, cmd)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.NewAuditRecord(
		domain.AuditActionCreate,
		domain.AuditEntityLedgerEntry,
		result.Entry.EntryID,
		cmd.PerformedBy,
		map[string]any{
			"productId": result.Entry.ProductID,
			"action":    result.Entry.Action,
		},
	))

	s.logger.Info("Recorded ledger entry",
		"entryId", result.Entry.EntryID,
		"productId", result.Entry.ProductID,
		"action", result.Entry.Action,
		"changeAmount", result.Entry.ChangeAmount,
	)
	return result, nil
}

// RecordBulk records a batch of entries with per-entry isolation: each entry
// commits or fails on its own, and one bad entry never blocks the rest. The
// batch always reports a full partition of its inputs into successes and
// failures.
func (s *LedgerApplicationService) RecordBulk(ctx context.Context, cmd RecordBulkCommand) (*BulkBatchResultDTO, error) {
	if len(cmd.Entries) == 0 {
		return nil, errors.ErrValidation("batch contains no entries")
	}
	if cmd.PerformedBy == "" {
		return nil, errors.ErrValidation("performedBy is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.bulkTimeout)
	defer cancel()

	result := &BulkBatchResultDTO{
		Successful:     make([]LedgerEntryDTO, 0, len(cmd.Entries)),
		Failed:         make([]BulkFailureDTO, 0),
		ProductUpdates: make([]StockUpdateDTO, 0),
	}

	for i, item := range cmd.Entries {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, BulkFailureDTO{
				Index:     i,
				ProductID: item.ProductID,
				Reason:    "batch timed out",
			})
			continue
		}

		entryCmd := applyOverrides(item, cmd.Overrides, cmd.PerformedBy)
		one, err := s.recordOne(ctx, entryCmd)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailureDTO{
				Index:     i,
				ProductID: item.ProductID,
				Reason:    failureReason(err),
			})
			continue
		}

		result.Successful = append(result.Successful, one.Entry)
		if one.StockUpdate != nil {
			result.ProductUpdates = append(result.ProductUpdates, *one.StockUpdate)
		}
	}

	total := len(cmd.Entries)
	result.Summary = BulkSummaryDTO{
		Total:           total,
		SuccessfulCount: len(result.Successful),
		FailedCount:     len(result.Failed),
		SuccessRate:     float64(len(result.Successful)) / float64(total) * 100,
	}

	// The batch context may already be expired; the summary audit and event
	// are best-effort and must still go out after a timed-out batch
	postCtx, postCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer postCancel()

	s.recordAudit(postCtx, domain.NewBatchAuditRecord(
		cmd.PerformedBy,
		total,
		result.Summary.SuccessfulCount,
		result.Summary.FailedCount,
		map[string]any{"actionOverride": cmd.Overrides.Action},
	))

	s.publishBatchCompleted(postCtx, cmd.PerformedBy, result.Summary)

	if s.metrics != nil {
		s.metrics.RecordBulkBatch(result.Summary.SuccessfulCount, result.Summary.FailedCount)
	}

	s.logger.Info("Recorded bulk batch",
		"total", total,
		"successful", result.Summary.SuccessfulCount,
		"failed", result.Summary.FailedCount,
	)
	return result, nil
}

// recordOne runs the full validate-mutate-persist pipeline for one entry
func (s *LedgerApplicationService) recordOne(ctx context.Context, cmd RecordEntryCommand) (*RecordEntryResultDTO, error) {
	entry, err := domain.NewStockLedgerEntry(toDomainInput(cmd), cmd.PerformedBy)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	product, err := s.productRepo.FindByID(ctx, cmd.ProductID)
	if err != nil {
		if stderrors.Is(err, domain.ErrProductNotFound) {
			return nil, errors.ErrNotFoundWithID("product", cmd.ProductID)
		}
		s.logger.Error("Failed to load product", "productId", cmd.ProductID, "error", err)
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product.Deleted {
		return nil, errors.ErrValidation(domain.ErrProductDeleted.Error()).
			WithDetail("productId", cmd.ProductID)
	}

	aggregate := domain.NewLedgerEntryAggregate(entry)

	var stockUpdate *domain.StockUpdate
	err = s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		if product.NeedsStockWrite(entry) {
			if err := s.productRepo.UpdateStock(txCtx, product.ProductID, product.StockQuantity, entry.QuantityAfter, entry.CreatedAt); err != nil {
				return err
			}
			aggregate.RecordStockWrite(product.StockQuantity, entry.QuantityAfter)
			stockUpdate = &domain.StockUpdate{
				ProductID:     product.ProductID,
				PreviousStock: product.StockQuantity,
				NewStock:      entry.QuantityAfter,
				StockChange:   entry.QuantityAfter - product.StockQuantity,
			}
		}
		// Entry insert also stores pending domain events in the outbox
		return s.entryRepo.Save(txCtx, aggregate)
	})
	if err != nil {
		if stderrors.Is(err, domain.ErrStockConflict) {
			if s.metrics != nil {
				s.metrics.RecordStockConflict(cmd.ProductID)
			}
			return nil, errors.ErrConflict("product stock changed concurrently").
				WithDetail("productId", cmd.ProductID)
		}
		s.logger.Error("Failed to record entry", "productId", cmd.ProductID, "error", err)
		return nil, fmt.Errorf("failed to record entry: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLedgerEntry(entry.Action.String(), stockUpdate != nil)
	}

	entryDTO := toLedgerEntryDTO(&entry)
	return &RecordEntryResultDTO{
		Entry:       entryDTO,
		StockUpdate: toStockUpdateDTO(stockUpdate),
	}, nil
}

// GetEntry retrieves a single ledger entry by its entry ID
func (s *LedgerApplicationService) GetEntry(ctx context.Context, query GetEntryQuery) (*LedgerEntryDTO, error) {
	aggregate, err := s.entryRepo.FindByEntryID(ctx, query.EntryID)
	if err != nil {
		if stderrors.Is(err, domain.ErrEntryNotFound) {
			return nil, errors.ErrNotFoundWithID("ledger entry", query.EntryID)
		}
		return nil, fmt.Errorf("failed to find entry: %w", err)
	}

	dto := toLedgerEntryDTO(&aggregate.Entry)
	return &dto, nil
}

// GetEntriesByProduct lists a product's ledger history, newest first
func (s *LedgerApplicationService) GetEntriesByProduct(ctx context.Context, query GetEntriesByProductQuery) ([]LedgerEntryDTO, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	entries, err := s.entryRepo.FindByProduct(ctx, query.ProductID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find entries: %w", err)
	}
	return toLedgerEntryDTOs(entries), nil
}

// GetEntriesByReference lists every entry created by one reference, such as
// all entries of a sale or a purchase order
func (s *LedgerApplicationService) GetEntriesByReference(ctx context.Context, query GetEntriesByReferenceQuery) ([]LedgerEntryDTO, error) {
	if query.ReferenceID == "" {
		return nil, errors.ErrValidation("referenceId is required")
	}

	entries, err := s.entryRepo.FindByReference(ctx, query.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find entries: %w", err)
	}
	return toLedgerEntryDTOs(entries), nil
}

// GetEntriesByTimeRange lists a product's entries inside a time window
func (s *LedgerApplicationService) GetEntriesByTimeRange(ctx context.Context, query GetEntriesByTimeRangeQuery) ([]LedgerEntryDTO, error) {
	if query.Start.IsZero() || query.End.IsZero() {
		return nil, errors.ErrValidation("start and end are required")
	}
	if query.End.Before(query.Start) {
		return nil, errors.ErrValidation("end must not be before start")
	}

	entries, err := s.entryRepo.FindByTimeRange(ctx, query.ProductID, query.Start, query.End)
	if err != nil {
		return nil, fmt.Errorf("failed to find entries: %w", err)
	}
	return toLedgerEntryDTOs(entries), nil
}

// GetProductStock reads a product's current stock level
func (s *LedgerApplicationService) GetProductStock(ctx context.Context, query GetProductStockQuery) (*ProductStockDTO, error) {
	product, err := s.productRepo.FindByID(ctx, query.ProductID)
	if err != nil {
		if stderrors.Is(err, domain.ErrProductNotFound) {
			return nil, errors.ErrNotFoundWithID("product", query.ProductID)
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return toProductStockDTO(product), nil
}

// recordAudit writes the audit trail best-effort. A failure is logged and
// counted but never changes the caller's outcome.
func (s *LedgerApplicationService) recordAudit(ctx context.Context, record domain.AuditRecord) {
	if err := s.auditRecorder.Record(ctx, record); err != nil {
		if s.metrics != nil {
			s.metrics.RecordAuditFailure(record.EntityType)
		}
		s.logger.Warn("Audit write failed",
			"auditId", record.AuditID,
			"entityType", record.EntityType,
			"entityId", record.EntityID,
			"error", err,
		)
	}
}

// publishBatchCompleted emits the batch summary event directly, bypassing the
// outbox. Per-entry events already flow through the outbox with their
// transactions; the summary is informational and best-effort.
func (s *LedgerApplicationService) publishBatchCompleted(ctx context.Context, performedBy string, summary BulkSummaryDTO) {
	if s.producer == nil || s.eventFactory == nil {
		return
	}

	event := s.eventFactory.CreateBulkBatchCompletedEvent(ctx, cloudevents.BulkBatchCompletedData{
		Total:       summary.Total,
		Successful:  summary.SuccessfulCount,
		Failed:      summary.FailedCount,
		PerformedBy: performedBy,
		CompletedAt: time.Now().UTC(),
	})
	if err := s.producer.PublishEvent(ctx, LedgerEventsTopic, event); err != nil {
		s.logger.Warn("Failed to publish batch completed event", "error", err)
	}
}

func applyOverrides(item BulkEntryItem, overrides BulkOverrides, performedBy string) RecordEntryCommand {
	cmd := RecordEntryCommand{
		ProductID:      item.ProductID,
		Action:         item.Action,
		ChangeAmount:   item.ChangeAmount,
		QuantityBefore: item.QuantityBefore,
		QuantityAfter:  item.QuantityAfter,
		PriceBefore:    item.PriceBefore,
		PriceAfter:     item.PriceAfter,
		ReferenceID:    item.ReferenceID,
		ReferenceType:  item.ReferenceType,
		Notes:          item.Notes,
		LocationID:     item.LocationID,
		BatchNumber:    item.BatchNumber,
		ExpiryDate:     item.ExpiryDate,
		PerformedBy:    performedBy,
	}
	if overrides.Action != "" {
		cmd.Action = overrides.Action
	}
	if overrides.ReferenceID != "" {
		cmd.ReferenceID = overrides.ReferenceID
	}
	if overrides.ReferenceType != "" {
		cmd.ReferenceType = overrides.ReferenceType
	}
	if overrides.Notes != "" {
		cmd.Notes = overrides.Notes
	}
	return cmd
}

// failureReason extracts a stable, user-facing reason from an entry failure
func failureReason(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
