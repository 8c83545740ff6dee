package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey is the request header a POS terminal sends on
	// writes it may retry after a dropped connection.
	HeaderIdempotencyKey = "Idempotency-Key"

	// ContextKeyRecordID is the gin context key under which the middleware
	// stores the Mongo id of the in-flight idempotency record.
	ContextKeyRecordID = "idempotency_record_id"
)

// bodyRecorder tees the handler's response into a buffer so a completed
// request can be replayed verbatim on retry.
type bodyRecorder struct {
	gin.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func (w *bodyRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware makes mutating ledger endpoints safe to retry. When a terminal
// resubmits a receipt under the same Idempotency-Key, the response recorded
// for the first attempt is replayed instead of writing a second ledger entry.
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OnlyMutating && !mutates(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": "Idempotency-Key header is required on this endpoint",
					"code":  "IDEMPOTENCY_KEY_REQUIRED",
				})
				return
			}
			// Keyless writes are allowed in optional mode and simply skip
			// the replay machinery.
			c.Next()
			return
		}

		if err := ValidateKeyWithMaxLength(key, config.MaxKeyLength); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Rejected idempotency key: %v", err),
				"code":  "IDEMPOTENCY_KEY_INVALID",
			})
			return
		}

		var userID string
		if config.UserIDExtractor != nil {
			userID = config.UserIDExtractor(c)
		}

		// The body is consumed for fingerprinting and handed back to the
		// handler untouched.
		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		resolveKey(c, config, key, userID, ComputeFingerprint(body))
	}
}

// resolveKey claims the key in the store and routes the request down one of
// three paths: replay a finished attempt, reject a colliding in-flight
// attempt, or run the handler and record what it wrote.
func resolveKey(c *gin.Context, config *Config, key, userID, fingerprint string) {
	ctx := c.Request.Context()
	claimStart := time.Now()

	claim := &IdempotencyKey{
		Key:                key,
		UserID:             userID,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		CreatedAt:          time.Now().UTC(),
		ExpiresAt:          time.Now().UTC().Add(config.RetentionPeriod),
	}

	record, isNew, err := config.Repository.AcquireLock(ctx, claim)
	if err != nil {
		slog.Error("Idempotency store rejected lock claim",
			"error", err,
			"idempotencyKey", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)
		if config.Metrics != nil {
			config.Metrics.RecordStorageError(config.ServiceName, "acquire_lock")
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "Retry protection is temporarily unavailable, submit again later",
			"code":  "IDEMPOTENCY_STORAGE_UNAVAILABLE",
		})
		return
	}

	if config.Metrics != nil {
		config.Metrics.RecordLockAcquisitionDuration(
			config.ServiceName,
			c.Request.URL.Path,
			c.Request.Method,
			time.Since(claimStart).Seconds(),
		)
	}

	if record.IsCompleted() {
		if record.RequestFingerprint != fingerprint {
			slog.Warn("Idempotency key reused with a different payload",
				"idempotencyKey", key,
				"service", config.ServiceName,
				"path", c.Request.URL.Path,
				"recordedFingerprint", record.RequestFingerprint,
				"retryFingerprint", fingerprint,
			)
			if config.Metrics != nil {
				config.Metrics.RecordParameterMismatch(
					config.ServiceName,
					c.Request.URL.Path,
					c.Request.Method,
				)
			}
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error": "This idempotency key was already used with a different request body",
				"code":  "IDEMPOTENCY_PARAMETER_MISMATCH",
			})
			return
		}
		replayResponse(c, config, key, record)
		return
	}

	if !isNew && record.IsLocked() {
		lockAge := time.Since(*record.LockedAt)
		if lockAge < config.LockTimeout {
			slog.Warn("Duplicate submission while original is still in flight",
				"idempotencyKey", key,
				"service", config.ServiceName,
				"path", c.Request.URL.Path,
				"lockAge", lockAge,
			)
			if config.Metrics != nil {
				config.Metrics.RecordConcurrentCollision(
					config.ServiceName,
					c.Request.URL.Path,
					c.Request.Method,
				)
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "A submission with this idempotency key is still being processed",
				"code":  "IDEMPOTENCY_CONCURRENT_REQUEST",
			})
			return
		}
		// The earlier attempt died without completing. Take over its record.
		slog.Info("Reclaiming stale idempotency lock",
			"idempotencyKey", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
			"lockAge", lockAge,
		)
	}

	c.Set(ContextKeyRecordID, record.ID.Hex())

	if config.Metrics != nil {
		config.Metrics.RecordMiss(
			config.ServiceName,
			c.Request.URL.Path,
			c.Request.Method,
		)
	}

	recorder := &bodyRecorder{
		ResponseWriter: c.Writer,
		buf:            &bytes.Buffer{},
		status:         http.StatusOK,
	}
	c.Writer = recorder

	c.Next()

	persistResponse(c, config, key, record.ID.Hex(), recorder)
}

// replayResponse serves the stored outcome of the original attempt without
// running the handler again.
func replayResponse(c *gin.Context, config *Config, key string, record *IdempotencyKey) {
	slog.Info("Replaying recorded response for retried submission",
		"idempotencyKey", key,
		"service", config.ServiceName,
		"path", c.Request.URL.Path,
		"statusCode", record.ResponseCode,
	)
	if config.Metrics != nil {
		config.Metrics.RecordHit(
			config.ServiceName,
			c.Request.URL.Path,
			c.Request.Method,
		)
	}

	for name, value := range record.ResponseHeaders {
		c.Header(name, value)
	}
	c.Data(record.ResponseCode, "application/json", record.ResponseBody)
	c.Abort()
}

// persistResponse stores what the handler wrote so later retries can replay
// it. A storage failure here is logged but not surfaced: the ledger write
// already happened and the client gets the real response.
func persistResponse(c *gin.Context, config *Config, key, recordID string, recorder *bodyRecorder) {
	responseBody := recorder.buf.Bytes()

	if len(responseBody) > config.MaxResponseSize {
		slog.Warn("Response exceeds replay cache limit, storing marker",
			"idempotencyKey", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
			"size", len(responseBody),
			"maxSize", config.MaxResponseSize,
		)
		responseBody = []byte(fmt.Sprintf(`{"error":"Response too large to cache","size":%d}`, len(responseBody)))
	}

	headers := make(map[string]string, len(c.Writer.Header()))
	for name, values := range c.Writer.Header() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	err := config.Repository.StoreResponse(
		c.Request.Context(),
		recordID,
		recorder.status,
		responseBody,
		headers,
	)
	if err != nil {
		slog.Error("Failed to store response for replay",
			"error", err,
			"idempotencyKey", key,
			"service", config.ServiceName,
			"path", c.Request.URL.Path,
		)
		if config.Metrics != nil {
			config.Metrics.RecordStorageError(config.ServiceName, "store_response")
		}
		return
	}

	slog.Debug("Recorded response for future retries",
		"idempotencyKey", key,
		"service", config.ServiceName,
		"path", c.Request.URL.Path,
		"statusCode", recorder.status,
	)
}

// mutates reports whether the method can change ledger state. GET and HEAD
// are replay-safe by definition and bypass the key machinery.
func mutates(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
