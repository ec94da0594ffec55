package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Store — in-memory хранилище заказов и outbox под одним мьютексом.
// Сохранение заказа и запись его событий в outbox атомарны.
type Store struct {
	mu      sync.RWMutex
	orders  map[string]domain.OrderSnapshot
	keys    map[domain.IdempotencyScope]string
	outbox  map[string]*outboxRecord
	nextSeq int64
	now     func() time.Time
}

// NewStore возвращает пустое хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{
		orders: make(map[string]domain.OrderSnapshot),
		keys:   make(map[domain.IdempotencyScope]string),
		outbox: make(map[string]*outboxRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ domain.OrderRepository  = (*Store)(nil)
	_ domain.OutboxRepository = (*Store)(nil)
)
