package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pos-platform/ledger-service/pkg/metrics"
)

// MetricsMiddleware records HTTP request metrics for every matched route
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip the metrics endpoint to avoid recursion
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method

		// Use the route pattern so path parameters don't explode cardinality
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.RecordHTTPRequest(method, path, status, duration)
	}
}

// MetricsEndpoint returns a handler serving the Prometheus scrape endpoint
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	handler := m.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// RequestMetrics captures per-request measurements for custom recording
type RequestMetrics struct {
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
	ClientIP  string
	RequestID string
}

// ExtractRequestMetrics extracts measurements from the current request
func ExtractRequestMetrics(c *gin.Context, duration time.Duration) *RequestMetrics {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	return &RequestMetrics{
		Method:    c.Request.Method,
		Path:      path,
		Status:    c.Writer.Status(),
		Duration:  duration,
		ClientIP:  c.ClientIP(),
		RequestID: GetRequestID(c),
	}
}
