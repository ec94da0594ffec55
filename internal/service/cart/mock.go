package cart

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// MockService — in-memory заглушка CartService.
type MockService struct {
	mu sync.Mutex

	Carts    map[string]domain.Cart
	GetErr   error
	ClearErr error

	GetCalls   int
	ClearCalls int
}

// NewMockService возвращает пустой mock с успешным сценарием.
func NewMockService() *MockService {
	return &MockService{Carts: map[string]domain.Cart{}}
}

// GetCart возвращает сохранённую корзину или (nil, nil).
func (m *MockService) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	cart, ok := m.Carts[userID]
	if !ok {
		return nil, nil
	}
	return &cart, nil
}

// ClearCart удаляет корзину пользователя.
func (m *MockService) ClearCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ClearCalls++
	if m.ClearErr != nil {
		return m.ClearErr
	}
	delete(m.Carts, userID)
	return nil
}

// Calls возвращает счётчики вызовов под мьютексом.
func (m *MockService) Calls() (get, cleared int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls, m.ClearCalls
}

var _ domain.CartService = (*MockService)(nil)
