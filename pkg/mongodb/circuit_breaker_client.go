package mongodb

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pos-platform/ledger-service/pkg/logging"
	"github.com/pos-platform/ledger-service/pkg/resilience"
)

// CircuitBreakerClient protects the health check and transaction entry
// points with a circuit breaker. Individual collection reads and writes stay
// unprotected so an open breaker fails fast on new transactions without
// aborting ones already in flight.
type CircuitBreakerClient struct {
	client         *Client
	circuitBreaker *resilience.CircuitBreaker
	logger         *logging.Logger
}

// NewCircuitBreakerClient creates a circuit breaker protected MongoDB client
func NewCircuitBreakerClient(client *Client, logger *logging.Logger) *CircuitBreakerClient {
	config := &resilience.CircuitBreakerConfig{
		Name:                  "mongodb",
		MaxRequests:           5,
		Interval:              time.Minute,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}

	var slogLogger *slog.Logger
	if logger != nil && logger.Logger != nil {
		slogLogger = logger.Logger
	} else {
		slogLogger = slog.Default()
	}

	return &CircuitBreakerClient{
		client:         client,
		circuitBreaker: resilience.NewCircuitBreaker(config, slogLogger),
		logger:         logger,
	}
}

// HealthCheck pings MongoDB through the circuit breaker
func (c *CircuitBreakerClient) HealthCheck(ctx context.Context) error {
	_, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, c.client.HealthCheck(ctx)
	})
	return err
}

// WithTransaction executes a function within a transaction, failing fast
// when the breaker is open
func (c *CircuitBreakerClient) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	_, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, c.client.WithTransaction(ctx, fn)
	})
	return err
}

// State returns the current breaker state name
func (c *CircuitBreakerClient) State() string {
	return c.circuitBreaker.State().String()
}

// Underlying returns the wrapped client
func (c *CircuitBreakerClient) Underlying() *Client {
	return c.client
}
