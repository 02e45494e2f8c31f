package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"

	log "github.com/sirupsen/logrus"
)

// LedgerStore is the durable tenant-partitioned entry store.
type LedgerStore interface {
	TailStore
	ChainReader
	AllOrdered(ctx context.Context, tenantID string) ([]domain.Entry, error)
	Ping(ctx context.Context) error
}

type LedgerServiceInterface interface {
	Append(ctx context.Context, event domain.Event) (*domain.Entry, error)
	ListEntries(ctx context.Context, tenantID string, afterSeq int64) ([]domain.Entry, error)
	Verify(ctx context.Context, tenantID string, opts VerifyOptions) (*domain.VerifyResult, error)
	Health(ctx context.Context) error
}

type VerifyOptions struct {
	// Deep recomputes every digest in addition to checking links.
	Deep bool
	// From starts verification after a known-good checkpoint.
	From *domain.Checkpoint
}

const publishTimeout = 15 * time.Second

type LedgerService struct {
	store        LedgerStore
	appender     *Appender
	verifier     *Verifier
	deepVerifier *Verifier
	audit        *AuditService
	inflight     sync.WaitGroup
}

func NewLedgerService(store LedgerStore, policy RetryPolicy, audit *AuditService) *LedgerService {
	return &LedgerService{
		store:        store,
		appender:     NewAppender(store, policy),
		verifier:     NewVerifier(store),
		deepVerifier: NewVerifier(store, WithDigestCheck()),
		audit:        audit,
	}
}

func (s *LedgerService) Append(ctx context.Context, event domain.Event) (*domain.Entry, error) {
	entry, err := s.appender.Append(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	s.publish(ctx, entry)
	return entry, nil
}

// publish hands the committed entry to the audit publisher in the
// background. Publishing failures never fail the append.
func (s *LedgerService) publish(ctx context.Context, entry *domain.Entry) {
	if s.audit == nil || s.audit.publisher == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.audit.RecordEntryAppended(ctx, entry); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"tenant_id": entry.TenantID,
				"entry_id":  entry.ID,
			}).Warn("Failed to publish ledger entry")
		}
	}()
}

func (s *LedgerService) ListEntries(ctx context.Context, tenantID string, afterSeq int64) ([]domain.Entry, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		afterSeq = 0
	}

	entries, err := s.store.OrderedSince(ctx, tenantID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (s *LedgerService) Verify(ctx context.Context, tenantID string, opts VerifyOptions) (*domain.VerifyResult, error) {
	v := s.verifier
	if opts.Deep {
		v = s.deepVerifier
	}

	if opts.From != nil {
		return v.VerifyFrom(ctx, tenantID, *opts.From)
	}
	return v.Verify(ctx, tenantID)
}

func (s *LedgerService) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close waits for in-flight publishes.
func (s *LedgerService) Close() {
	s.inflight.Wait()
}
