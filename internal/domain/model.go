package domain

import (
	"errors"
	"time"
)

// Ledger errors
var (
	// ErrConflict is returned by a store when an insert violates one of the
	// chain uniqueness constraints. It is retried by the appender and never
	// surfaces to callers on its own.
	ErrConflict = errors.New("ledger conflict")

	// ErrLedgerBusy is returned when every append attempt lost the race for
	// the tenant tail. Callers may retry later.
	ErrLedgerBusy = errors.New("audit ledger busy, please try again")

	// ErrStorageUnavailable wraps store failures unrelated to the uniqueness race.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")

	ErrEntryNotFound = errors.New("ledger entry not found")
)

// GenesisHash is the prev_hash of every tenant's first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HashLength is the length of a hex encoded SHA-256 digest.
const HashLength = 64

type Entry struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	Seq          int64                  `json:"seq"`
	SequenceTime time.Time              `json:"sequence_time"`
	ActorID      string                 `json:"actor_id"`
	Action       string                 `json:"action"`
	Resource     string                 `json:"resource"`
	Context      map[string]interface{} `json:"context,omitempty"`
	PrevHash     string                 `json:"prev_hash"`
	CurrHash     string                 `json:"curr_hash"`
}

// IsGenesis reports whether the entry is the first one of its tenant chain.
func (e *Entry) IsGenesis() bool {
	return e.PrevHash == GenesisHash
}
