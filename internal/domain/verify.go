package domain

// BreakReason names the check that failed at a chain break.
type BreakReason string

const (
	// BreakLink means prev_hash does not equal the predecessor's curr_hash
	// (or the genesis sentinel for the first entry).
	BreakLink BreakReason = "link"
	// BreakDigest means curr_hash does not match the digest recomputed from
	// the entry's stored fields.
	BreakDigest BreakReason = "digest"
)

type ChainBreak struct {
	Index            int         `json:"index"`
	Seq              int64       `json:"seq"`
	EntryID          string      `json:"entry_id"`
	Reason           BreakReason `json:"reason"`
	PrevHashSeen     string      `json:"prev_hash_seen"`
	CurrHashExpected string      `json:"curr_hash_expected"`

	// CurrHashStored is set for digest breaks.
	CurrHashStored string `json:"curr_hash_stored,omitempty"`
}

// VerifyResult is Valid when Break is nil. Index in Break is relative to the
// first verified entry.
type VerifyResult struct {
	TenantID string      `json:"tenant_id"`
	Valid    bool        `json:"valid"`
	Checked  int         `json:"checked"`
	Break    *ChainBreak `json:"break,omitempty"`
	Head     *Checkpoint `json:"head,omitempty"`
}

// Checkpoint is a known-good position in a tenant chain. Incremental
// verification starts right after it.
type Checkpoint struct {
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// GenesisCheckpoint is the position before a tenant's first entry.
func GenesisCheckpoint() Checkpoint {
	return Checkpoint{Seq: 0, Hash: GenesisHash}
}
