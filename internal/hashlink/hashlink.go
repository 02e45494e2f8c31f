// Package hashlink computes the digest that binds a ledger entry to its
// predecessor:
//
//	SHA256(prev_hash || timestamp || actor_id || action || resource || context)
//
// The timestamp and context are rendered in a canonical textual form so the
// digest is reproducible after a round trip through storage.
package hashlink

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"
)

// TimestampLayout is ISO-8601 with fixed microsecond precision and an
// explicit UTC offset.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

const emptyContext = "{}"

// Precision is the timestamp resolution kept by the store.
const Precision = time.Microsecond

// NormalizeTime converts t into the exact instant that will be hashed and stored.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

func CanonicalTimestamp(t time.Time) string {
	return NormalizeTime(t).Format(TimestampLayout)
}

// CanonicalContext serializes ctx as compact JSON with object keys sorted at
// every depth. A nil or empty map yields "{}".
func CanonicalContext(ctx map[string]interface{}) (string, error) {
	if len(ctx) == 0 {
		return emptyContext, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidContext, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Compute returns the lowercase hex SHA-256 digest for an entry.
func Compute(prevHash string, timestamp time.Time, actorID, action, resource string, ctx map[string]interface{}) (string, error) {
	contextStr, err := CanonicalContext(ctx)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(CanonicalTimestamp(timestamp)))
	h.Write([]byte(actorID))
	h.Write([]byte(action))
	h.Write([]byte(resource))
	h.Write([]byte(contextStr))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeEntry recomputes the digest of a stored entry from its fields.
func ComputeEntry(e *domain.Entry) (string, error) {
	return Compute(e.PrevHash, e.SequenceTime, e.ActorID, e.Action, e.Resource, e.Context)
}

// IsHash reports whether s looks like a digest produced by Compute.
func IsHash(s string) bool {
	if len(s) != domain.HashLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
