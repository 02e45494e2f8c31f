package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"
	"github.com/kusuridheeraj/sentinel/internal/hashlink"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TailStore is the part of the ledger store the appender writes through.
// Insert must return an error wrapping domain.ErrConflict when a uniqueness
// constraint rejects the entry.
type TailStore interface {
	Latest(ctx context.Context, tenantID string) (*domain.Entry, error)
	Insert(ctx context.Context, entry *domain.Entry) error
}

const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = 10 * time.Millisecond
)

type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	// Jitter adds up to one BackoffBase of random delay to every wait.
	Jitter bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		Jitter:      true,
	}
}

// Backoff returns the wait before the attempt following the given failed
// attempt: BackoffBase * attempt, plus jitter when enabled.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BackoffBase <= 0 || attempt <= 0 {
		return 0
	}
	d := p.BackoffBase * time.Duration(attempt)
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(p.BackoffBase)))
	}
	return d
}

type appendState string

const (
	stateReadTail    appendState = "READ_TAIL"
	stateComputeHash appendState = "COMPUTE_HASH"
	stateInsert      appendState = "INSERT"
	stateCommitted   appendState = "COMMITTED"
	stateConflict    appendState = "CONFLICT"
)

// Appender links new events to the tenant tail. It holds no locks; a lost
// race is detected by the store constraints and the attempt is restarted.
type Appender struct {
	store  TailStore
	policy RetryPolicy
	now    func() time.Time
	newID  func() string
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewAppender(store TailStore, policy RetryPolicy) *Appender {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	return &Appender{
		store:  store,
		policy: policy,
		now:    time.Now,
		newID:  uuid.NewString,
		sleep:  sleepContext,
	}
}

func (a *Appender) Append(ctx context.Context, event domain.Event) (*domain.Entry, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	var (
		state     = stateReadTail
		attempt   = 1
		tail      *domain.Entry
		candidate *domain.Entry
		err       error
	)

	for {
		switch state {
		case stateReadTail:
			tail, err = a.store.Latest(ctx, event.TenantID)
			if errors.Is(err, domain.ErrEntryNotFound) {
				tail, err = nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read tenant tail: %w", err)
			}
			state = stateComputeHash

		case stateComputeHash:
			candidate, err = a.link(event, tail)
			if err != nil {
				return nil, err
			}
			state = stateInsert

		case stateInsert:
			err = a.store.Insert(ctx, candidate)
			switch {
			case err == nil:
				state = stateCommitted
			case errors.Is(err, domain.ErrConflict):
				state = stateConflict
			default:
				return nil, err
			}

		case stateCommitted:
			log.WithFields(log.Fields{
				"tenant_id": candidate.TenantID,
				"entry_id":  candidate.ID,
				"seq":       candidate.Seq,
				"attempt":   attempt,
			}).Info("Ledger entry committed")
			return candidate, nil

		case stateConflict:
			log.WithError(err).WithFields(log.Fields{
				"tenant_id": event.TenantID,
				"attempt":   attempt,
			}).Debug("Ledger tail moved during append")

			if attempt >= a.policy.MaxAttempts {
				log.WithFields(log.Fields{
					"tenant_id": event.TenantID,
					"attempts":  attempt,
				}).Error("Failed to append ledger entry after max attempts due to contention")
				return nil, fmt.Errorf("%w: gave up after %d attempts", domain.ErrLedgerBusy, attempt)
			}

			if err := a.sleep(ctx, a.policy.Backoff(attempt)); err != nil {
				return nil, err
			}
			attempt++
			state = stateReadTail
		}
	}
}

// link builds the candidate entry that follows tail (nil for an empty chain).
func (a *Appender) link(event domain.Event, tail *domain.Entry) (*domain.Entry, error) {
	prevHash := domain.GenesisHash
	seq := int64(1)
	ts := hashlink.NormalizeTime(a.now())

	if tail != nil {
		prevHash = tail.CurrHash
		seq = tail.Seq + 1
		// sequence_time never goes backwards within a tenant chain.
		if !ts.After(tail.SequenceTime) {
			ts = hashlink.NormalizeTime(tail.SequenceTime).Add(hashlink.Precision)
		}
	}

	currHash, err := hashlink.Compute(prevHash, ts, event.ActorID, event.Action, event.Resource, event.Context)
	if err != nil {
		return nil, err
	}

	return &domain.Entry{
		ID:           a.newID(),
		TenantID:     event.TenantID,
		Seq:          seq,
		SequenceTime: ts,
		ActorID:      event.ActorID,
		Action:       event.Action,
		Resource:     event.Resource,
		Context:      event.Context,
		PrevHash:     prevHash,
		CurrHash:     currHash,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
