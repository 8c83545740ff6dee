package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// stubKeyRepository lets each test script the lock and store outcomes.
type stubKeyRepository struct {
	acquireLockFunc   func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)
	storeResponseFunc func(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error

	storedCode int
	storedBody []byte
}

func (s *stubKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	if s.acquireLockFunc != nil {
		return s.acquireLockFunc(ctx, key)
	}
	return key, true, nil
}

func (s *stubKeyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	return nil
}

func (s *stubKeyRepository) StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	s.storedCode = responseCode
	s.storedBody = responseBody
	if s.storeResponseFunc != nil {
		return s.storeResponseFunc(ctx, keyID, responseCode, responseBody, headers)
	}
	return nil
}

func (s *stubKeyRepository) Get(ctx context.Context, key, serviceID string) (*IdempotencyKey, error) {
	return nil, ErrNotFound
}

func (s *stubKeyRepository) GetByID(ctx context.Context, keyID string) (*IdempotencyKey, error) {
	return nil, ErrNotFound
}

func (s *stubKeyRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *stubKeyRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

const entryPayload = `{"productId":"PRD-1001","action":"quick_decrease","quantityBefore":20,"changeAmount":-5,"quantityAfter":15,"performedBy":"USR-42"}`

func ledgerRouter(config *Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	router.POST("/api/v1/ledger/entries", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"entryId": "SLE-1756700000-a1b2c3d4"})
	})
	return router
}

func postEntry(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/entries", bytes.NewBufferString(entryPayload))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func completedRecord(claim *IdempotencyKey, fingerprint string, body []byte) *IdempotencyKey {
	completedAt := time.Now().UTC()
	return &IdempotencyKey{
		ID:                 [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Key:                claim.Key,
		ServiceID:          claim.ServiceID,
		RequestPath:        claim.RequestPath,
		RequestMethod:      claim.RequestMethod,
		RequestFingerprint: fingerprint,
		ResponseCode:       http.StatusCreated,
		ResponseBody:       body,
		ResponseHeaders:    map[string]string{"Content-Type": "application/json"},
		CompletedAt:        &completedAt,
	}
}

func TestMiddleware_KeylessWriteInOptionalMode(t *testing.T) {
	repo := &stubKeyRepository{}
	config := DefaultConfig("ledger-service", repo)

	w := postEntry(ledgerRouter(config), "")

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestMiddleware_KeylessWriteRejectedWhenRequired(t *testing.T) {
	repo := &stubKeyRepository{}
	config := DefaultConfig("ledger-service", repo)
	config.RequireKey = true

	w := postEntry(ledgerRouter(config), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiddleware_MalformedKey(t *testing.T) {
	repo := &stubKeyRepository{}
	config := DefaultConfig("ledger-service", repo)

	w := postEntry(ledgerRouter(config), "POS-07 RCPT 000481")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiddleware_FirstSubmissionRecordsResponse(t *testing.T) {
	repo := &stubKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			key.ID = [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
			return key, true, nil
		},
	}
	config := DefaultConfig("ledger-service", repo)

	w := postEntry(ledgerRouter(config), "POS-07_RCPT-000481")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, http.StatusCreated, repo.storedCode)
	assert.JSONEq(t, `{"entryId":"SLE-1756700000-a1b2c3d4"}`, string(repo.storedBody))
}

func TestMiddleware_RetryReplaysRecordedResponse(t *testing.T) {
	recorded := []byte(`{"entryId":"SLE-1756600000-deadbeef"}`)
	repo := &stubKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			return completedRecord(key, key.RequestFingerprint, recorded), false, nil
		},
	}
	config := DefaultConfig("ledger-service", repo)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	router.POST("/api/v1/ledger/entries", func(c *gin.Context) {
		t.Error("handler must not run when a recorded response is replayed")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/entries", bytes.NewBufferString(entryPayload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, "POS-07_RCPT-000481")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, string(recorded), w.Body.String())
}

func TestMiddleware_KeyReuseWithDifferentPayload(t *testing.T) {
	originalFingerprint := ComputeFingerprint([]byte(`{"productId":"PRD-2002","action":"quick_increase","changeAmount":5}`))
	repo := &stubKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			return completedRecord(key, originalFingerprint, []byte(`{"entryId":"SLE-1756600000-deadbeef"}`)), false, nil
		},
	}
	config := DefaultConfig("ledger-service", repo)

	w := postEntry(ledgerRouter(config), "POS-07_RCPT-000481")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMiddleware_DuplicateWhileInFlight(t *testing.T) {
	lockedAt := time.Now().UTC()
	repo := &stubKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			inFlight := &IdempotencyKey{
				ID:                 [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
				Key:                key.Key,
				ServiceID:          key.ServiceID,
				RequestPath:        key.RequestPath,
				RequestMethod:      key.RequestMethod,
				RequestFingerprint: key.RequestFingerprint,
				LockedAt:           &lockedAt,
			}
			return inFlight, false, nil
		},
	}
	config := DefaultConfig("ledger-service", repo)

	w := postEntry(ledgerRouter(config), "POS-07_RCPT-000481")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMiddleware_StoreUnavailable(t *testing.T) {
	repo := &stubKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			return nil, false, errors.New("connection refused")
		},
	}
	config := DefaultConfig("ledger-service", repo)

	w := postEntry(ledgerRouter(config), "POS-07_RCPT-000481")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMiddleware_ReadsBypassKeyMachinery(t *testing.T) {
	repo := &stubKeyRepository{
		acquireLockFunc: func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			t.Error("AcquireLock must not be called for a read")
			return nil, false, errors.New("unreachable")
		},
	}
	config := DefaultConfig("ledger-service", repo)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	router.GET("/api/v1/ledger/entries/SLE-1756700000-a1b2c3d4", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"entryId": "SLE-1756700000-a1b2c3d4"})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/entries/SLE-1756700000-a1b2c3d4", nil)
	req.Header.Set(HeaderIdempotencyKey, "POS-07_RCPT-000481")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
