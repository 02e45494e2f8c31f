package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/kusuridheeraj/sentinel/internal/domain"
)

type tenantPrev struct {
	tenantID string
	prevHash string
}

type tenantSeq struct {
	tenantID string
	seq      int64
}

// MemoryLedgerRepository keeps ledger entries in process memory. It enforces
// the same uniqueness constraints as the ledger_entries table.
type MemoryLedgerRepository struct {
	mu         sync.RWMutex
	chains     map[string][]domain.Entry
	currHashes map[string]struct{}
	prevHashes map[tenantPrev]struct{}
	seqs       map[tenantSeq]struct{}
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		chains:     make(map[string][]domain.Entry),
		currHashes: make(map[string]struct{}),
		prevHashes: make(map[tenantPrev]struct{}),
		seqs:       make(map[tenantSeq]struct{}),
	}
}

func (r *MemoryLedgerRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryLedgerRepository) Latest(ctx context.Context, tenantID string) (*domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := r.chains[tenantID]
	if len(chain) == 0 {
		return nil, domain.ErrEntryNotFound
	}
	entry := copyEntry(chain[len(chain)-1])
	return &entry, nil
}

func (r *MemoryLedgerRepository) Insert(ctx context.Context, entry *domain.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.currHashes[entry.CurrHash]; ok {
		return fmt.Errorf("%w: curr_hash already exists", domain.ErrConflict)
	}
	key := tenantPrev{tenantID: entry.TenantID, prevHash: entry.PrevHash}
	if _, ok := r.prevHashes[key]; ok {
		return fmt.Errorf("%w: prev_hash already claimed", domain.ErrConflict)
	}
	seqKey := tenantSeq{tenantID: entry.TenantID, seq: entry.Seq}
	if _, ok := r.seqs[seqKey]; ok {
		return fmt.Errorf("%w: seq already exists", domain.ErrConflict)
	}

	r.currHashes[entry.CurrHash] = struct{}{}
	r.prevHashes[key] = struct{}{}
	r.seqs[seqKey] = struct{}{}
	r.chains[entry.TenantID] = append(r.chains[entry.TenantID], copyEntry(*entry))
	return nil
}

func (r *MemoryLedgerRepository) OrderedSince(ctx context.Context, tenantID string, afterSeq int64) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := []domain.Entry{}
	for _, e := range r.chains[tenantID] {
		if e.Seq > afterSeq {
			entries = append(entries, copyEntry(e))
		}
	}
	return entries, nil
}

func (r *MemoryLedgerRepository) AllOrdered(ctx context.Context, tenantID string) ([]domain.Entry, error) {
	return r.OrderedSince(ctx, tenantID, 0)
}

func copyEntry(e domain.Entry) domain.Entry {
	if e.Context != nil {
		e.Context = copyValue(e.Context).(map[string]interface{})
	}
	return e
}

// copyValue deep copies the maps and slices of a decoded JSON value.
func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = copyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
