package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const outboxColumns = `id, seq, aggregate_id, type, content, occurred_at, processed_at, retry_count, error`

// OutboxRepository — PostgreSQL-реализация domain.OutboxRepository.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository создаёт outbox-репозиторий.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.db}
}

func insertOutboxMessage(ctx context.Context, tx *sqlx.Tx, msg domain.OutboxMessage) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_id, type, content, occurred_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, msg.ID, msg.AggregateID, string(msg.Type), string(msg.Content), msg.OccurredAt.UTC()); err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.ID, err)
	}
	return nil
}

// Claim арендует батч строк. Строки под чужой действующей арендой
// и строки, заблокированные параллельным Claim, пропускаются.
func (r *OutboxRepository) Claim(ctx context.Context, claim domain.OutboxClaim) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, `
		UPDATE outbox_messages
		SET locked_by = $1,
		    locked_until = NOW() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id
			FROM outbox_messages
			WHERE processed_at IS NULL
			  AND retry_count < $3
			  AND (locked_by IS NULL OR locked_by = $1 OR locked_until < NOW())
			ORDER BY occurred_at, seq
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		claim.Owner, claim.Lease.Seconds(), claim.MaxRetries, claim.Limit,
	); err != nil {
		return nil, fmt.Errorf("claim outbox messages: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].OccurredAt.Equal(rows[j].OccurredAt) {
			return rows[i].OccurredAt.Before(rows[j].OccurredAt)
		}
		return rows[i].Seq < rows[j].Seq
	})

	result := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.message())
	}
	return result, nil
}

// Complete в одной транзакции пишет итоги по строкам, всё ещё арендованным owner,
// и снимает его аренду с остальных. Возвращает ID записанных строк.
func (r *OutboxRepository) Complete(ctx context.Context, owner string, results []domain.OutboxMessage) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := make([]string, 0, len(results))
	for _, msg := range results {
		var processedAt sql.NullTime
		if msg.ProcessedAt != nil {
			processedAt = sql.NullTime{Time: msg.ProcessedAt.UTC(), Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE outbox_messages
			SET processed_at = $2,
			    retry_count = $3,
			    error = NULLIF($4, ''),
			    locked_by = NULL,
			    locked_until = NULL
			WHERE id = $1 AND locked_by = $5
		`, msg.ID, processedAt, msg.RetryCount, msg.Error, owner)
		if err != nil {
			return nil, fmt.Errorf("complete outbox message %s: %w", msg.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			written = append(written, msg.ID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE outbox_messages SET locked_by = NULL, locked_until = NULL WHERE locked_by = $1
	`, owner); err != nil {
		return nil, fmt.Errorf("release outbox leases: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox batch: %w", err)
	}
	return written, nil
}

// Stats считает backlog и poison-сообщения.
func (r *OutboxRepository) Stats(ctx context.Context, maxRetries int) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row struct {
		Pending int          `db:"pending"`
		Oldest  sql.NullTime `db:"oldest"`
		Poison  int          `db:"poison"`
	}
	if err := r.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*) FILTER (WHERE retry_count < $1) AS pending,
			MIN(occurred_at) FILTER (WHERE retry_count < $1) AS oldest,
			COUNT(*) FILTER (WHERE retry_count >= $1) AS poison
		FROM outbox_messages
		WHERE processed_at IS NULL
	`, maxRetries); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: row.Pending, PoisonCount: row.Poison}
	if row.Oldest.Valid {
		stats.OldestPendingAt = row.Oldest.Time.UTC()
	}
	return stats, nil
}

// DeadLetters возвращает необработанные строки, исчерпавшие попытки.
func (r *OutboxRepository) DeadLetters(ctx context.Context, maxRetries, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+outboxColumns+`
		FROM outbox_messages
		WHERE processed_at IS NULL AND retry_count >= $1
		ORDER BY occurred_at, seq
		LIMIT $2
	`, maxRetries, limit); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.message())
	}
	return result, nil
}

// Requeue обнуляет retry_count и ошибку у необработанных строк.
func (r *OutboxRepository) Requeue(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := sqlx.In(`
		UPDATE outbox_messages
		SET retry_count = 0, error = NULL, locked_by = NULL, locked_until = NULL
		WHERE id::text IN (?) AND processed_at IS NULL
	`, ids)
	if err != nil {
		return 0, fmt.Errorf("build requeue query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("requeue outbox messages: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
