package outbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos-platform/ledger-service/pkg/cloudevents"
	"github.com/pos-platform/ledger-service/pkg/logging"
	pkgtesting "github.com/pos-platform/ledger-service/pkg/testing"
)

type fakeRepository struct {
	mu     sync.Mutex
	events []*OutboxEvent
}

func (r *fakeRepository) Save(ctx context.Context, event *OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepository) CountUnpublished(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if !e.IsPublished() {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepository) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			now := time.Now()
			e.PublishedAt = &now
			return nil
		}
	}
	return fmt.Errorf("event not found: %s", eventID)
}

func (r *fakeRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			e.RetryCount++
			e.LastError = errorMsg
			return nil
		}
	}
	return fmt.Errorf("event not found: %s", eventID)
}

func (r *fakeRepository) DeletePublished(ctx context.Context, olderThan int64) error {
	return nil
}

func (r *fakeRepository) publishedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.IsPublished() {
			n++
		}
	}
	return n
}

func (r *fakeRepository) retryCount(eventID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			return e.RetryCount
		}
	}
	return -1
}

type fakeProducer struct {
	mu        sync.Mutex
	published []publishedEvent
	failTypes map[string]error
}

type publishedEvent struct {
	topic string
	event *cloudevents.CloudEvent
}

func (p *fakeProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failTypes[event.Type]; ok {
		return err
	}
	p.published = append(p.published, publishedEvent{topic: topic, event: event})
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakeProducer) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.published))
	for _, e := range p.published {
		out = append(out, e.topic)
	}
	return out
}

func testLogger() *logging.Logger {
	config := logging.DefaultConfig("outbox-test")
	config.Level = logging.LevelError
	return logging.New(config)
}

func stagedEvent(t *testing.T, eventType, topic string) *OutboxEvent {
	t.Helper()
	ce := &cloudevents.CloudEvent{
		SpecVersion:     "1.0",
		ID:              eventType + "-id",
		Source:          cloudevents.SourceLedger,
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            map[string]string{"productId": "PRD-1"},
	}
	event, err := NewOutboxEventFromCloudEvent("SLE-1", "StockLedgerEntry", topic, ce)
	require.NoError(t, err)
	return event
}

func TestPublisherRelaysStagedEvents(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}

	ctx, cancel := pkgtesting.CreateTestContext(5 * time.Second)
	defer cancel()

	require.NoError(t, repo.SaveAll(ctx, []*OutboxEvent{
		stagedEvent(t, cloudevents.LedgerEntryRecorded, "pos.ledger.events"),
		stagedEvent(t, cloudevents.StockLevelChanged, "pos.stock.events"),
	}))

	publisher := NewPublisher(repo, producer, testLogger(), nil, &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
	require.NoError(t, publisher.Start(ctx))
	defer publisher.Stop()

	pkgtesting.AssertEventually(t, func() bool {
		return producer.count() == 2 && repo.publishedCount() == 2
	}, 2*time.Second, "both staged events relayed and marked published")

	assert.ElementsMatch(t, []string{"pos.ledger.events", "pos.stock.events"}, producer.topics())
}

func TestPublisherDoesNotRelayTwice(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}

	ctx, cancel := pkgtesting.CreateTestContext(5 * time.Second)
	defer cancel()

	require.NoError(t, repo.Save(ctx, stagedEvent(t, cloudevents.LedgerEntryRecorded, "pos.ledger.events")))

	publisher := NewPublisher(repo, producer, testLogger(), nil, &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
	require.NoError(t, publisher.Start(ctx))
	defer publisher.Stop()

	pkgtesting.AssertEventually(t, func() bool {
		return repo.publishedCount() == 1
	}, 2*time.Second, "event marked published")

	// Let several more polls run; a published event must not be re-sent
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, producer.count())
}

func TestPublisherRetriesFailedEvents(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{
		failTypes: map[string]error{
			cloudevents.StockLevelChanged: fmt.Errorf("broker unavailable"),
		},
	}

	ctx, cancel := pkgtesting.CreateTestContext(5 * time.Second)
	defer cancel()

	good := stagedEvent(t, cloudevents.LedgerEntryRecorded, "pos.ledger.events")
	bad := stagedEvent(t, cloudevents.StockLevelChanged, "pos.stock.events")
	require.NoError(t, repo.SaveAll(ctx, []*OutboxEvent{good, bad}))

	publisher := NewPublisher(repo, producer, testLogger(), nil, &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
	require.NoError(t, publisher.Start(ctx))
	defer publisher.Stop()

	pkgtesting.AssertEventually(t, func() bool {
		return repo.publishedCount() == 1 && repo.retryCount(bad.ID) >= 2
	}, 2*time.Second, "good event published, bad event retried")

	assert.Equal(t, 1, producer.count())
	assert.Equal(t, 0, repo.retryCount(good.ID))
}

func TestPublisherGivesUpAfterMaxRetries(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{
		failTypes: map[string]error{
			cloudevents.LedgerEntryRecorded: fmt.Errorf("broker unavailable"),
		},
	}

	ctx, cancel := pkgtesting.CreateTestContext(5 * time.Second)
	defer cancel()

	event := stagedEvent(t, cloudevents.LedgerEntryRecorded, "pos.ledger.events")
	event.MaxRetries = 3
	require.NoError(t, repo.Save(ctx, event))

	publisher := NewPublisher(repo, producer, testLogger(), nil, &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
	require.NoError(t, publisher.Start(ctx))
	defer publisher.Stop()

	pkgtesting.AssertEventually(t, func() bool {
		return repo.retryCount(event.ID) >= 3
	}, 2*time.Second, "retries exhausted")

	// Exhausted events drop out of FindUnpublished and stay unpublished
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, repo.retryCount(event.ID))
	assert.Equal(t, 0, producer.count())
	assert.False(t, event.IsPublished())
}

func TestPublisherStartStopLifecycle(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}

	ctx, cancel := pkgtesting.CreateTestContext(5 * time.Second)
	defer cancel()

	publisher := NewPublisher(repo, producer, testLogger(), nil, nil)

	require.False(t, publisher.IsRunning())
	require.NoError(t, publisher.Start(ctx))
	require.True(t, publisher.IsRunning())

	assert.Error(t, publisher.Start(ctx), "second start must be rejected")

	require.NoError(t, publisher.Stop())
	require.False(t, publisher.IsRunning())
	assert.Error(t, publisher.Stop(), "second stop must be rejected")
}
