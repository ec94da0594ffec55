package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля аренды.
type outboxRecord struct {
	msg         domain.OutboxMessage
	seq         int64
	lockedBy    string
	lockedUntil time.Time
}

func (r *outboxRecord) leasedByOther(owner string, now time.Time) bool {
	return r.lockedBy != "" && r.lockedBy != owner && now.Before(r.lockedUntil)
}

// Claim выдаёт необработанные сообщения в порядке (occurred_at, seq) и ставит на них аренду.
func (s *Store) Claim(ctx context.Context, claim domain.OutboxClaim) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	candidates := make([]*outboxRecord, 0)
	for _, rec := range s.outbox {
		if rec.msg.ProcessedAt != nil || rec.msg.RetryCount >= claim.MaxRetries {
			continue
		}
		if rec.leasedByOther(claim.Owner, now) {
			continue
		}
		candidates = append(candidates, rec)
	}
	sortRecords(candidates)
	if claim.Limit > 0 && len(candidates) > claim.Limit {
		candidates = candidates[:claim.Limit]
	}

	result := make([]domain.OutboxMessage, 0, len(candidates))
	for _, rec := range candidates {
		rec.lockedBy = claim.Owner
		rec.lockedUntil = now.Add(claim.Lease)
		result = append(result, copyMessage(rec.msg))
	}
	return result, nil
}

// Complete записывает итоги батча для строк, всё ещё арендованных owner,
// и снимает его аренду со всех строк.
func (s *Store) Complete(ctx context.Context, owner string, results []domain.OutboxMessage) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := make([]string, 0, len(results))
	for _, result := range results {
		rec, ok := s.outbox[result.ID]
		if !ok || rec.lockedBy != owner {
			continue
		}
		rec.msg.ProcessedAt = copyTime(result.ProcessedAt)
		rec.msg.RetryCount = result.RetryCount
		rec.msg.Error = result.Error
		written = append(written, result.ID)
	}
	for _, rec := range s.outbox {
		if rec.lockedBy == owner {
			rec.lockedBy = ""
			rec.lockedUntil = time.Time{}
		}
	}
	return written, nil
}

// Stats считает backlog и poison-сообщения.
func (s *Store) Stats(ctx context.Context, maxRetries int) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range s.outbox {
		if rec.msg.ProcessedAt != nil {
			continue
		}
		if rec.msg.RetryCount >= maxRetries {
			stats.PoisonCount++
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.msg.OccurredAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.OccurredAt
		}
	}
	return stats, nil
}

// DeadLetters возвращает необработанные сообщения, исчерпавшие попытки.
func (s *Store) DeadLetters(ctx context.Context, maxRetries, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	poisoned := make([]*outboxRecord, 0)
	for _, rec := range s.outbox {
		if rec.msg.ProcessedAt == nil && rec.msg.RetryCount >= maxRetries {
			poisoned = append(poisoned, rec)
		}
	}
	sortRecords(poisoned)
	if limit > 0 && len(poisoned) > limit {
		poisoned = poisoned[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(poisoned))
	for _, rec := range poisoned {
		result = append(result, copyMessage(rec.msg))
	}
	return result, nil
}

// Requeue обнуляет счётчик попыток у необработанных сообщений.
func (s *Store) Requeue(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requeued := 0
	for _, id := range ids {
		rec, ok := s.outbox[id]
		if !ok || rec.msg.ProcessedAt != nil {
			continue
		}
		rec.msg.RetryCount = 0
		rec.msg.Error = ""
		rec.lockedBy = ""
		rec.lockedUntil = time.Time{}
		requeued++
	}
	return requeued, nil
}

// OutboxMessages возвращает копию всех строк outbox в порядке записи.
func (s *Store) OutboxMessages() []domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*outboxRecord, 0, len(s.outbox))
	for _, rec := range s.outbox {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, copyMessage(rec.msg))
	}
	return result
}

func sortRecords(records []*outboxRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].msg.OccurredAt.Equal(records[j].msg.OccurredAt) {
			return records[i].msg.OccurredAt.Before(records[j].msg.OccurredAt)
		}
		return records[i].seq < records[j].seq
	})
}

func copyMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	msg.Content = append([]byte(nil), msg.Content...)
	msg.ProcessedAt = copyTime(msg.ProcessedAt)
	return msg
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
