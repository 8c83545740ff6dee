package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{
			name:    "terminal generated UUID",
			key:     "9f2c1d34-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
			wantErr: nil,
		},
		{
			name:    "terminal receipt compound key",
			key:     "POS-07_RCPT-000481",
			wantErr: nil,
		},
		{
			name:    "missing key",
			key:     "",
			wantErr: ErrKeyRequired,
		},
		{
			name:    "over the length limit",
			key:     strings.Repeat("k", DefaultMaxKeyLength+1),
			wantErr: ErrKeyTooLong,
		},
		{
			name:    "exactly at the length limit",
			key:     strings.Repeat("k", DefaultMaxKeyLength),
			wantErr: nil,
		},
		{
			name:    "embedded space",
			key:     "POS-07 RCPT-000481",
			wantErr: ErrKeyInvalid,
		},
		{
			name:    "hash character",
			key:     "RCPT#000481",
			wantErr: ErrKeyInvalid,
		},
		{
			name:    "path separator",
			key:     "POS-07/RCPT-000481",
			wantErr: ErrKeyInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateKeyWithMaxLength(t *testing.T) {
	assert.NoError(t, ValidateKeyWithMaxLength(strings.Repeat("k", 64), 64))
	assert.ErrorIs(t, ValidateKeyWithMaxLength(strings.Repeat("k", 65), 64), ErrKeyTooLong)
	assert.ErrorIs(t, ValidateKeyWithMaxLength("", 64), ErrKeyRequired)
}

func TestComputeFingerprint(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		// SHA-256 of zero bytes
		assert.Equal(t,
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			ComputeFingerprint(nil))
	})

	t.Run("deterministic for identical submissions", func(t *testing.T) {
		body := []byte(`{"productId":"PRD-1001","action":"quick_decrease","quantityBefore":20,"changeAmount":-5,"quantityAfter":15}`)
		first := ComputeFingerprint(body)
		assert.Len(t, first, 64)
		assert.Equal(t, first, ComputeFingerprint(body))
	})

	t.Run("differs when the payload differs", func(t *testing.T) {
		decrease := []byte(`{"productId":"PRD-1001","action":"quick_decrease","changeAmount":-5}`)
		increase := []byte(`{"productId":"PRD-1001","action":"quick_increase","changeAmount":5}`)
		assert.NotEqual(t, ComputeFingerprint(decrease), ComputeFingerprint(increase))
	})
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"already clean", "POS-07_RCPT-000481", "POS-07_RCPT-000481"},
		{"leading whitespace", "  POS-07_RCPT-000481", "POS-07_RCPT-000481"},
		{"trailing whitespace", "POS-07_RCPT-000481  ", "POS-07_RCPT-000481"},
		{"padded with tabs", "\tPOS-07_RCPT-000481\t", "POS-07_RCPT-000481"},
		{"only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.key))
		})
	}
}

func BenchmarkComputeFingerprint(b *testing.B) {
	body := []byte(`{"productId":"PRD-1001","action":"manual_adjustment","quantityBefore":120,"changeAmount":-3,"quantityAfter":117,"performedBy":"USR-42","reason":"cycle count"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeFingerprint(body)
	}
}

func BenchmarkValidateKey(b *testing.B) {
	key := "9f2c1d34-5a6b-4c7d-8e9f-0a1b2c3d4e5f"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateKey(key)
	}
}
