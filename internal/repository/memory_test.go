package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"
)

func testEntry(tenantID string, seq int64, prev, curr string) *domain.Entry {
	return &domain.Entry{
		ID:           curr[:8],
		TenantID:     tenantID,
		Seq:          seq,
		SequenceTime: time.Date(2024, 1, 1, 0, 0, int(seq), 0, time.UTC),
		ActorID:      "u1",
		Action:       "login",
		Resource:     "portal",
		PrevHash:     prev,
		CurrHash:     curr,
	}
}

func hashOf(c byte) string {
	b := make([]byte, domain.HashLength)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestMemoryLedgerRepository_EmptyTenant(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()

	if _, err := repo.Latest(ctx, "org_2"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("Latest() error = %v, want ErrEntryNotFound", err)
	}
	entries, err := repo.AllOrdered(ctx, "org_2")
	if err != nil {
		t.Fatalf("AllOrdered() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("AllOrdered() returned %d entries, want 0", len(entries))
	}
}

func TestMemoryLedgerRepository_InsertAndRead(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()

	first := testEntry("org_1", 1, domain.GenesisHash, hashOf('a'))
	second := testEntry("org_1", 2, hashOf('a'), hashOf('b'))
	for _, e := range []*domain.Entry{first, second} {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert(seq=%d) error = %v", e.Seq, err)
		}
	}

	tail, err := repo.Latest(ctx, "org_1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if tail.CurrHash != second.CurrHash {
		t.Errorf("Latest() curr_hash = %s, want %s", tail.CurrHash, second.CurrHash)
	}

	entries, err := repo.AllOrdered(ctx, "org_1")
	if err != nil {
		t.Fatalf("AllOrdered() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 1 || entries[1].Seq != 2 {
		t.Fatalf("AllOrdered() = %+v", entries)
	}

	since, err := repo.OrderedSince(ctx, "org_1", 1)
	if err != nil {
		t.Fatalf("OrderedSince() error = %v", err)
	}
	if len(since) != 1 || since[0].Seq != 2 {
		t.Errorf("OrderedSince(1) = %+v", since)
	}
}

func TestMemoryLedgerRepository_Conflicts(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		entry *domain.Entry
	}{
		{"same prev_hash in tenant", testEntry("org_1", 2, domain.GenesisHash, hashOf('c'))},
		{"duplicate curr_hash across tenants", testEntry("org_9", 1, domain.GenesisHash, hashOf('a'))},
		{"duplicate seq in tenant", testEntry("org_1", 1, hashOf('x'), hashOf('d'))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryLedgerRepository()
			if err := repo.Insert(ctx, testEntry("org_1", 1, domain.GenesisHash, hashOf('a'))); err != nil {
				t.Fatalf("seed Insert() error = %v", err)
			}
			err := repo.Insert(ctx, tt.entry)
			if !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("Insert() error = %v, want ErrConflict", err)
			}
			wantLen := 0
			if tt.entry.TenantID == "org_1" {
				wantLen = 1
			}
			entries, _ := repo.AllOrdered(ctx, tt.entry.TenantID)
			if len(entries) != wantLen {
				t.Errorf("tenant %s has %d entries after conflict, want %d", tt.entry.TenantID, len(entries), wantLen)
			}
		})
	}
}

func TestMemoryLedgerRepository_SameGenesisDifferentTenants(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()

	if err := repo.Insert(ctx, testEntry("org_1", 1, domain.GenesisHash, hashOf('a'))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Insert(ctx, testEntry("org_2", 1, domain.GenesisHash, hashOf('b'))); err != nil {
		t.Fatalf("second tenant genesis Insert() error = %v", err)
	}
}

func TestMemoryLedgerRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()

	e := testEntry("org_1", 1, domain.GenesisHash, hashOf('a'))
	e.Context = map[string]interface{}{"ip": "10.0.0.1"}
	if err := repo.Insert(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Context["ip"] = "changed"

	got, err := repo.Latest(ctx, "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Context["ip"] != "10.0.0.1" {
		t.Errorf("stored context was mutated through caller map: %v", got.Context)
	}
	got.ActorID = "mallory"

	again, _ := repo.Latest(ctx, "org_1")
	if again.ActorID != "u1" {
		t.Errorf("stored entry was mutated through returned value")
	}
}

func TestMemoryLedgerRepository_ReturnsDeepCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()

	e := testEntry("org_1", 1, domain.GenesisHash, hashOf('a'))
	e.Context = map[string]interface{}{
		"client": map[string]interface{}{"ip": "10.0.0.1"},
		"tags":   []interface{}{"a", map[string]interface{}{"k": "v"}},
	}
	if err := repo.Insert(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Context["client"].(map[string]interface{})["ip"] = "changed"
	e.Context["tags"].([]interface{})[0] = "changed"

	got, err := repo.Latest(ctx, "org_1")
	if err != nil {
		t.Fatal(err)
	}
	client := got.Context["client"].(map[string]interface{})
	tags := got.Context["tags"].([]interface{})
	if client["ip"] != "10.0.0.1" || tags[0] != "a" {
		t.Fatalf("stored nested context was mutated through caller map: %v", got.Context)
	}

	client["ip"] = "mallory"
	tags[1].(map[string]interface{})["k"] = "mallory"

	entries, err := repo.AllOrdered(ctx, "org_1")
	if err != nil {
		t.Fatal(err)
	}
	stored := entries[0].Context
	if stored["client"].(map[string]interface{})["ip"] != "10.0.0.1" || stored["tags"].([]interface{})[1].(map[string]interface{})["k"] != "v" {
		t.Errorf("stored nested context was mutated through returned value: %v", stored)
	}
}

func TestMemoryLedgerRepository_SeqConflictAfterManyEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()

	prev := domain.GenesisHash
	for i := 1; i <= 50; i++ {
		curr := fmt.Sprintf("%064x", i)
		if err := repo.Insert(ctx, testEntry("org_1", int64(i), prev, curr)); err != nil {
			t.Fatalf("Insert(seq %d) error = %v", i, err)
		}
		prev = curr
	}

	dup := testEntry("org_1", 10, prev, fmt.Sprintf("%064x", 1000))
	if err := repo.Insert(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Insert(duplicate seq) error = %v, want ErrConflict", err)
	}

	other := testEntry("org_2", 10, domain.GenesisHash, fmt.Sprintf("%064x", 1001))
	if err := repo.Insert(ctx, other); err != nil {
		t.Errorf("seq uniqueness must be per tenant, got %v", err)
	}
}

func TestMemoryLedgerRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewMemoryLedgerRepository()
	err := repo.Insert(ctx, testEntry("org_1", 1, domain.GenesisHash, hashOf('a')))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Insert() error = %v, want context.Canceled", err)
	}
	if _, err := repo.Latest(context.Background(), "org_1"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("canceled insert left an entry behind")
	}
}
