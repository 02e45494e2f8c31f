package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"
	"github.com/kusuridheeraj/sentinel/internal/hashlink"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const defaultQueryTimeout = 5 * time.Second

// Postgres error codes that signal a lost race for the tenant tail.
const (
	pqUniqueViolation      pq.ErrorCode = "23505"
	pqSerializationFailure pq.ErrorCode = "40001"
)

// pqCharacterNotInRepertoire is raised for text the database cannot store,
// such as a NUL byte.
const pqCharacterNotInRepertoire pq.ErrorCode = "22021"

const entryColumns = `id, tenant_id, seq, sequence_time, actor_id, action, resource, context, prev_hash, curr_hash`

type postgresLedgerRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func NewPostgresLedgerRepository(db *sql.DB, queryTimeout time.Duration) *postgresLedgerRepository {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &postgresLedgerRepository{db: db, queryTimeout: queryTimeout}
}

func (r *postgresLedgerRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	if err := r.db.PingContext(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// Latest returns the tenant tail, or domain.ErrEntryNotFound for an empty chain.
func (r *postgresLedgerRepository) Latest(ctx context.Context, tenantID string) (*domain.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT 1`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		log.WithError(err).WithField("tenant_id", tenantID).Error("Failed to read ledger tail")
		return nil, fmt.Errorf("failed to read ledger tail: %w", classifyError(err))
	}

	return entry, nil
}

// Insert persists entry in its own transaction. A uniqueness violation is
// reported as domain.ErrConflict and leaves nothing behind.
func (r *postgresLedgerRepository) Insert(ctx context.Context, entry *domain.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	contextValue, err := contextColumn(entry.Context)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", classifyError(err))
	}
	defer tx.Rollback()

	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = tx.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.Seq,
		entry.SequenceTime,
		entry.ActorID,
		entry.Action,
		entry.Resource,
		contextValue,
		entry.PrevHash,
		entry.CurrHash,
	)
	if err != nil {
		classified := classifyError(err)
		if !errors.Is(classified, domain.ErrConflict) {
			log.WithError(err).WithFields(log.Fields{
				"tenant_id": entry.TenantID,
				"entry_id":  entry.ID,
			}).Error("Failed to insert ledger entry")
		}
		return fmt.Errorf("failed to insert ledger entry: %w", classified)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", classifyError(err))
	}

	return nil
}

// OrderedSince returns the tenant entries with seq greater than afterSeq in
// ascending order. The single statement reads one consistent snapshot.
func (r *postgresLedgerRepository) OrderedSince(ctx context.Context, tenantID string, afterSeq int64) ([]domain.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1 AND seq > $2
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, afterSeq)
	if err != nil {
		log.WithError(err).WithField("tenant_id", tenantID).Error("Failed to list ledger entries")
		return nil, fmt.Errorf("failed to list ledger entries: %w", classifyError(err))
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan ledger entry row")
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", classifyError(err))
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Error iterating over ledger entry rows")
		return nil, fmt.Errorf("error iterating over ledger entry rows: %w", classifyError(err))
	}

	return entries, nil
}

func (r *postgresLedgerRepository) AllOrdered(ctx context.Context, tenantID string) ([]domain.Entry, error) {
	return r.OrderedSince(ctx, tenantID, 0)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*domain.Entry, error) {
	var entry domain.Entry
	var contextJSON sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.Seq,
		&entry.SequenceTime,
		&entry.ActorID,
		&entry.Action,
		&entry.Resource,
		&contextJSON,
		&entry.PrevHash,
		&entry.CurrHash,
	)
	if err != nil {
		return nil, err
	}

	entry.SequenceTime = entry.SequenceTime.UTC()
	if contextJSON.Valid {
		entry.Context, err = decodeContext(contextJSON.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entry context: %w", err)
		}
	}

	return &entry, nil
}

// contextColumn returns the canonical JSON for the context column, or nil
// for an absent context.
func contextColumn(ctx map[string]interface{}) (interface{}, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	s, err := hashlink.CanonicalContext(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// decodeContext keeps numbers as json.Number so re-canonicalization
// reproduces the stored text.
func decodeContext(s string) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var ctx map[string]interface{}
	if err := dec.Decode(&ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqSerializationFailure:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Constraint)
		case pqCharacterNotInRepertoire:
			return fmt.Errorf("%w: %s", domain.ErrInvalidEvent, pqErr.Message)
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}
