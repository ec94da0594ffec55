package catalog

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// MockService — конфигурируемая заглушка CatalogService для тестов и локального запуска.
type MockService struct {
	mu sync.Mutex

	Products map[string]domain.Product
	// Для этих товаров CheckStock отвечает false.
	OutOfStock map[string]bool
	Err        error

	GetProductCalls  int
	GetProductsCalls int
	CheckStockCalls  int
}

// NewMockService возвращает mock, где любой товар есть на складе.
func NewMockService(products ...domain.Product) *MockService {
	m := &MockService{
		Products:   make(map[string]domain.Product, len(products)),
		OutOfStock: map[string]bool{},
	}
	for _, p := range products {
		m.Products[p.ID] = p
	}
	return m
}

// GetProduct возвращает товар из карты или (nil, nil).
func (m *MockService) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetProductCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetProducts возвращает известные товары в порядке запроса.
func (m *MockService) GetProducts(_ context.Context, productIDs []string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetProductsCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if p, ok := m.Products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// CheckStock отвечает false только для товаров из OutOfStock.
func (m *MockService) CheckStock(_ context.Context, productID string, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CheckStockCalls++
	if m.Err != nil {
		return false, m.Err
	}
	return !m.OutOfStock[productID], nil
}

var _ domain.CatalogService = (*MockService)(nil)
