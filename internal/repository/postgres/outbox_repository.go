package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository is the pgx-backed message store. Every method is a single
// atomic statement; per-record concurrency control is the database's.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

var _ outbox.Repository = (*OutboxRepository)(nil)

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Create(ctx context.Context, aggregateID, eventType string, payload map[string]any) (*outbox.Record, error) {
	rec := outbox.NewRecord(aggregateID, eventType, payload)

	raw, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO outbox (id, aggregate_id, event_type, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.AggregateID, rec.EventType, raw, string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert outbox record: %w", err)
	}
	return rec, nil
}

func (r *OutboxRepository) FindByStatus(ctx context.Context, status outbox.Status) ([]*outbox.Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, aggregate_id, event_type, payload, status, created_at
		 FROM outbox WHERE status = $1
		 ORDER BY created_at ASC`, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("find outbox records by status: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateStatus moves the record to the given status only when the lifecycle
// graph allows it, in one guarded UPDATE … RETURNING statement.
func (r *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status outbox.Status) (*outbox.Record, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE outbox SET status = $2
		 WHERE id = $1 AND status = ANY($3)
		 RETURNING id, aggregate_id, event_type, payload, status, created_at`,
		id, string(status), allowedSources(status),
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyUpdateFailure(ctx, id)
		}
		return nil, err
	}
	return rec, nil
}

func (r *OutboxRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outbox WHERE status = $1 AND created_at < $2`,
		string(outbox.StatusArchived), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete outbox records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// allowedSources lists the statuses a record may hold for the transition to
// be legal, including the target itself so repeated sets stay idempotent.
func allowedSources(to outbox.Status) []string {
	sources := []string{string(to)}
	for _, from := range []outbox.Status{
		outbox.StatusPending, outbox.StatusProcessed, outbox.StatusFailed,
		outbox.StatusRetry, outbox.StatusArchived,
	} {
		if from != to && outbox.CanTransition(from, to) {
			sources = append(sources, string(from))
		}
	}
	return sources
}

func (r *OutboxRepository) classifyUpdateFailure(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM outbox WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update outbox status: %w", err)
	}
	if !exists {
		return domainErrors.ErrRecordNotFound
	}
	return domainErrors.ErrInvalidStatusTransition
}

func scanRecord(row pgx.Row) (*outbox.Record, error) {
	rec := &outbox.Record{}
	var payload []byte
	var status string
	if err := row.Scan(&rec.ID, &rec.AggregateID, &rec.EventType, &payload, &status, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan outbox record: %w", err)
	}
	rec.Status = outbox.Status(status)
	if len(payload) > 0 {
		rec.Payload = make(map[string]any)
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
	}
	return rec, nil
}
