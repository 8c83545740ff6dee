package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pos-platform/ledger-service/pkg/errors"
)

// Config holds middleware setup configuration
type Config struct {
	ServiceName    string
	Logger         *slog.Logger
	EnableTracing  bool
	AllowedOrigins []string
}

// Setup applies the standard middleware chain to a router. Order matters:
// recovery first, then identity, logging, sanitization, and error rendering.
func Setup(router *gin.Engine, config Config) {
	InitValidator()

	router.Use(Recovery(config.Logger))
	router.Use(RequestID())
	router.Use(CorrelationID())
	if config.EnableTracing {
		router.Use(SimpleTracingMiddleware(config.ServiceName))
	}
	router.Use(Logger(config.Logger))
	router.Use(InputSanitizer())
	router.Use(CORS(config.AllowedOrigins))
	router.Use(ContentType())
	router.Use(ErrorHandler())

	router.NoRoute(func(c *gin.Context) {
		AbortWithAppError(c, errors.NewAppError("NOT_FOUND", "route not found", http.StatusNotFound))
	})
	router.NoMethod(func(c *gin.Context) {
		AbortWithAppError(c, errors.NewAppError("METHOD_NOT_ALLOWED", "method not allowed", http.StatusMethodNotAllowed))
	})
}

// CORS middleware handles cross-origin requests
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}
	allowAll := len(allowedOrigins) == 0 || originSet["*"]

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || originSet[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Correlation-ID, Idempotency-Key")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// HealthStatus is the health endpoint response body
type HealthStatus struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// HealthCheck returns a liveness handler
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck returns a readiness handler that runs the given probes.
// A probe returning an error marks the service not ready.
func ReadinessCheck(serviceName string, probes map[string]func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]string, len(probes))
		ready := true

		for name, probe := range probes {
			if err := probe(); err != nil {
				checks[name] = "unavailable: " + err.Error()
				ready = false
			} else {
				checks[name] = "ok"
			}
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}

		c.JSON(status, gin.H{
			"status":    state,
			"service":   serviceName,
			"checks":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
