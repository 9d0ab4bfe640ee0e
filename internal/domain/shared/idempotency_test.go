package shared

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	records map[string]*IdempotencyRecord
	getErr  error
	putErr  error
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*IdempotencyRecord)}
}

func (s *stubStore) Get(_ context.Context, key string) (*IdempotencyRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records[key], nil
}

func (s *stubStore) Put(_ context.Context, record IdempotencyRecord, _ time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	if _, exists := s.records[record.Key]; !exists {
		s.records[record.Key] = &record
	}
	return nil
}

func (s *stubStore) Close() error { return nil }

func TestIdempotencyGuardAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("empty key always runs", func(t *testing.T) {
		guard := NewIdempotencyGuard(newStubStore(), DefaultIdempotencyConfig())
		decision, stored, err := guard.Admit(ctx, "", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, DecisionRun, decision)
		assert.Nil(t, stored)
	})

	t.Run("unknown key runs", func(t *testing.T) {
		guard := NewIdempotencyGuard(newStubStore(), DefaultIdempotencyConfig())
		decision, _, err := guard.Admit(ctx, "key-1", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, DecisionRun, decision)
	})

	t.Run("same key and fingerprint replays the stored response", func(t *testing.T) {
		store := newStubStore()
		guard := NewIdempotencyGuard(store, DefaultIdempotencyConfig())
		response := json.RawMessage(`{"status":"HANDED_OFF"}`)
		require.NoError(t, guard.Commit(ctx, "key-1", "fp-1", response))

		decision, stored, err := guard.Admit(ctx, "key-1", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, DecisionReplay, decision)
		assert.JSONEq(t, string(response), string(stored))
	})

	t.Run("same key with different fingerprint conflicts", func(t *testing.T) {
		store := newStubStore()
		guard := NewIdempotencyGuard(store, DefaultIdempotencyConfig())
		require.NoError(t, guard.Commit(ctx, "key-1", "fp-1", json.RawMessage(`{}`)))

		decision, stored, err := guard.Admit(ctx, "key-1", "fp-2")
		require.NoError(t, err)
		assert.Equal(t, DecisionConflict, decision)
		assert.Nil(t, stored)
	})

	t.Run("store read error surfaces but still admits", func(t *testing.T) {
		store := newStubStore()
		store.getErr = errors.New("connection refused")
		guard := NewIdempotencyGuard(store, DefaultIdempotencyConfig())

		decision, _, err := guard.Admit(ctx, "key-1", "fp-1")
		require.Error(t, err)
		assert.Equal(t, DecisionRun, decision)
	})
}

func TestIdempotencyGuardCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("empty key is a no-op", func(t *testing.T) {
		store := newStubStore()
		guard := NewIdempotencyGuard(store, DefaultIdempotencyConfig())
		require.NoError(t, guard.Commit(ctx, "", "fp-1", json.RawMessage(`{}`)))
		assert.Empty(t, store.records)
	})

	t.Run("stores the record under the key", func(t *testing.T) {
		store := newStubStore()
		guard := NewIdempotencyGuard(store, DefaultIdempotencyConfig())
		require.NoError(t, guard.Commit(ctx, "key-1", "fp-1", json.RawMessage(`{"ok":true}`)))

		record := store.records["key-1"]
		require.NotNil(t, record)
		assert.Equal(t, "fp-1", record.Fingerprint)
		assert.False(t, record.CreatedAt.IsZero())
	})
}

func TestPayloadFingerprint(t *testing.T) {
	t.Run("independent of map key order", func(t *testing.T) {
		var a, b map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"version":3,"action":"accept","comment":"ok"}`), &a))
		require.NoError(t, json.Unmarshal([]byte(`{"comment":"ok","action":"accept","version":3}`), &b))
		assert.Equal(t, PayloadFingerprint(a), PayloadFingerprint(b))
	})

	t.Run("nested maps are canonicalized too", func(t *testing.T) {
		var a, b map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"outer":{"x":1,"y":2}}`), &a))
		require.NoError(t, json.Unmarshal([]byte(`{"outer":{"y":2,"x":1}}`), &b))
		assert.Equal(t, PayloadFingerprint(a), PayloadFingerprint(b))
	})

	t.Run("different payloads differ", func(t *testing.T) {
		a := map[string]any{"version": 3}
		b := map[string]any{"version": 4}
		assert.NotEqual(t, PayloadFingerprint(a), PayloadFingerprint(b))
	})

	t.Run("array order matters", func(t *testing.T) {
		a := []any{"x", "y"}
		b := []any{"y", "x"}
		assert.NotEqual(t, PayloadFingerprint(a), PayloadFingerprint(b))
	})
}
