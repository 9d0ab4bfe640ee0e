package shared

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// IdempotencyRecord is what a store keeps per client key: the fingerprint
// of the payload that was admitted under the key and the response that was
// produced for it. Records are short-lived; after expiry the key may be
// reused freely.
type IdempotencyRecord struct {
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Response    json.RawMessage `json:"response"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IdempotencyStore persists idempotency records with a TTL.
type IdempotencyStore interface {
	// Get returns the record stored under key, or nil if none exists
	// (or it has expired).
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Put stores a record under key with the given TTL. An existing live
	// record under the same key is not overwritten.
	Put(ctx context.Context, record IdempotencyRecord, ttl time.Duration) error

	// Close releases store resources
	Close() error
}

// IdempotencyDecision is the outcome of admitting a write request under a
// client-supplied idempotency key.
type IdempotencyDecision int

const (
	// DecisionRun means no prior record exists: the caller executes the
	// write and must Commit the outcome under the key.
	DecisionRun IdempotencyDecision = iota
	// DecisionReplay means the same key and payload were seen before:
	// the stored response is returned and no side effects re-execute.
	DecisionReplay
	// DecisionConflict means the key was reused with a different payload.
	DecisionConflict
)

// String returns the decision name
func (d IdempotencyDecision) String() string {
	switch d {
	case DecisionRun:
		return "RUN"
	case DecisionReplay:
		return "REPLAY"
	case DecisionConflict:
		return "CONFLICT"
	}
	return "UNKNOWN"
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for stored records. After this duration
	// the same key can be admitted again.
	TTL time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL: 24 * time.Hour,
	}
}

// IdempotencyGuard deduplicates write requests by client key plus payload
// fingerprint. It is a thin protocol over an IdempotencyStore so the same
// guard works against the in-memory and the Redis store.
type IdempotencyGuard struct {
	store IdempotencyStore
	ttl   time.Duration
}

// NewIdempotencyGuard creates a guard over the given store
func NewIdempotencyGuard(store IdempotencyStore, cfg IdempotencyConfig) *IdempotencyGuard {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyConfig().TTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl}
}

// Admit decides what to do with a write request arriving under key.
// An empty key admits unconditionally (no dedup; callers proceed at
// their own risk). The stored response accompanies DecisionReplay.
func (g *IdempotencyGuard) Admit(ctx context.Context, key, fingerprint string) (IdempotencyDecision, json.RawMessage, error) {
	if key == "" {
		return DecisionRun, nil, nil
	}
	record, err := g.store.Get(ctx, key)
	if err != nil {
		return DecisionRun, nil, err
	}
	if record == nil {
		return DecisionRun, nil, nil
	}
	if record.Fingerprint == fingerprint {
		return DecisionReplay, record.Response, nil
	}
	return DecisionConflict, nil, nil
}

// Commit stores the response produced for a request admitted with
// DecisionRun. A no-op when key is empty.
func (g *IdempotencyGuard) Commit(ctx context.Context, key, fingerprint string, response json.RawMessage) error {
	if key == "" {
		return nil
	}
	return g.store.Put(ctx, IdempotencyRecord{
		Key:         key,
		Fingerprint: fingerprint,
		Response:    response,
		CreatedAt:   time.Now(),
	}, g.ttl)
}

// PayloadFingerprint computes a stable hash of a request payload.
// Map keys are sorted before hashing so two JSON bodies that differ only
// in key order produce the same fingerprint.
func PayloadFingerprint(payload any) string {
	canonical := canonicalize(payload)
	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshal of canonicalized basic types cannot fail for payloads
		// that arrived as JSON; fall back to the error text so two equal
		// unmarshalable payloads still collide with each other.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize returns a representation of v with all map keys sorted
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			ordered = append(ordered, k, canonicalize(val[k]))
		}
		return ordered
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}
