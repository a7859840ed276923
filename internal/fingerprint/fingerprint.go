// Package fingerprint produces deterministic content hashes of sync candidates.
//
// Records are canonicalized first: system fields are stripped at every nesting level and
// object keys are sorted, so key order and bookkeeping columns never affect the hash.
// Null values are kept; arrays keep their order.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultLength is the number of hex characters kept from the digest.
const DefaultLength = 32

// DefaultExcludedFields are volatile or store-owned fields that never count as content.
var DefaultExcludedFields = []string{
	"id",
	"tenant_id",
	"created_at",
	"updated_at",
	"deleted_at",
	"synced_at",
	"last_synced_at",
	"sync_hash",
	"fingerprint",
	"cached_at",
	"cache_updated_at",
}

// Hasher canonicalizes and fingerprints records. The zero value is not usable; use New.
type Hasher struct {
	length   int
	excluded map[string]bool
}

type Option func(*Hasher)

// WithLength sets the number of hex characters kept. Values outside 1..64 are clamped.
func WithLength(n int) Option {
	return func(h *Hasher) {
		switch {
		case n < 1:
			n = 1
		case n > sha256.Size*2:
			n = sha256.Size * 2
		}
		h.length = n
	}
}

// WithExcludedFields replaces the default exclusion set.
func WithExcludedFields(fields ...string) Option {
	return func(h *Hasher) {
		h.excluded = toSet(fields)
	}
}

func New(opts ...Option) *Hasher {
	h := &Hasher{
		length:   DefaultLength,
		excluded: toSet(DefaultExcludedFields),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var defaultHasher = New()

// Canonicalize uses the default hasher.
func Canonicalize(v any) any { return defaultHasher.Canonicalize(v) }

// Fingerprint uses the default hasher.
func Fingerprint(v any) string { return defaultHasher.Fingerprint(v) }

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

// Length reports the configured fingerprint length.
func (h *Hasher) Length() int {
	return h.length
}

// Canonicalize returns a copy of v with excluded keys removed from every object.
// Values that are not JSON-shaped (structs, typed maps and slices) are first
// round-tripped through encoding/json.
func (h *Hasher) Canonicalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if h.excluded[k] {
				continue
			}
			out[k] = h.Canonicalize(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = h.Canonicalize(elem)
		}
		return out
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return val
		}
		return h.Canonicalize(generic)
	}
}

// CanonicalJSON serializes the canonical form with sorted keys and no insignificant whitespace.
func (h *Hasher) CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, h.Canonicalize(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the truncated lowercase hex SHA-256 of the canonical JSON.
func (h *Hasher) Fingerprint(v any) string {
	canonical, err := h.CanonicalJSON(v)
	if err != nil {
		// Unencodable values (NaN, channels) fall back to their Go representation.
		canonical = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:h.length]
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func toSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
