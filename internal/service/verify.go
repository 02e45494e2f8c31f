package service

import (
	"context"
	"fmt"

	"github.com/kusuridheeraj/sentinel/internal/domain"
	"github.com/kusuridheeraj/sentinel/internal/hashlink"

	log "github.com/sirupsen/logrus"
)

// ChainReader returns a consistent ascending snapshot of a tenant chain
// after the given seq.
type ChainReader interface {
	OrderedSince(ctx context.Context, tenantID string, afterSeq int64) ([]domain.Entry, error)
}

type Verifier struct {
	store        ChainReader
	checkDigests bool
}

type VerifierOption func(*Verifier)

// WithDigestCheck also recomputes every curr_hash from the stored fields.
func WithDigestCheck() VerifierOption {
	return func(v *Verifier) {
		v.checkDigests = true
	}
}

func NewVerifier(store ChainReader, opts ...VerifierOption) *Verifier {
	v := &Verifier{store: store}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the whole tenant chain starting at the genesis sentinel.
func (v *Verifier) Verify(ctx context.Context, tenantID string) (*domain.VerifyResult, error) {
	return v.VerifyFrom(ctx, tenantID, domain.GenesisCheckpoint())
}

// VerifyFrom checks the entries after checkpoint. The first of them must
// link to checkpoint.Hash. Scanning stops at the first break.
func (v *Verifier) VerifyFrom(ctx context.Context, tenantID string, checkpoint domain.Checkpoint) (*domain.VerifyResult, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	entries, err := v.store.OrderedSince(ctx, tenantID, checkpoint.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant chain: %w", err)
	}

	result := &domain.VerifyResult{TenantID: tenantID, Valid: true}
	expected := checkpoint.Hash

	for i := range entries {
		e := &entries[i]

		if e.PrevHash != expected {
			result.Valid = false
			result.Break = &domain.ChainBreak{
				Index:            i,
				Seq:              e.Seq,
				EntryID:          e.ID,
				Reason:           domain.BreakLink,
				PrevHashSeen:     e.PrevHash,
				CurrHashExpected: expected,
			}
			break
		}

		if v.checkDigests {
			recomputed, err := hashlink.ComputeEntry(e)
			if err != nil {
				return nil, fmt.Errorf("failed to recompute digest of entry %s: %w", e.ID, err)
			}
			if recomputed != e.CurrHash {
				result.Valid = false
				result.Break = &domain.ChainBreak{
					Index:            i,
					Seq:              e.Seq,
					EntryID:          e.ID,
					Reason:           domain.BreakDigest,
					PrevHashSeen:     e.PrevHash,
					CurrHashExpected: recomputed,
					CurrHashStored:   e.CurrHash,
				}
				break
			}
		}

		expected = e.CurrHash
		result.Checked++
	}

	if !result.Valid {
		log.WithFields(log.Fields{
			"tenant_id":          tenantID,
			"index":              result.Break.Index,
			"seq":                result.Break.Seq,
			"entry_id":           result.Break.EntryID,
			"reason":             result.Break.Reason,
			"prev_hash_seen":     result.Break.PrevHashSeen,
			"curr_hash_expected": result.Break.CurrHashExpected,
		}).Error("Ledger chain is broken")
		return result, nil
	}

	head := checkpoint
	if n := len(entries); n > 0 {
		head = domain.Checkpoint{Seq: entries[n-1].Seq, Hash: entries[n-1].CurrHash}
	}
	result.Head = &head

	log.WithFields(log.Fields{
		"tenant_id": tenantID,
		"checked":   result.Checked,
	}).Debug("Ledger chain verified")

	return result, nil
}
