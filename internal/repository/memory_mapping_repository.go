package repository

import (
	"sync"

	"tradebridge/internal/models"
)

// MemoryMappingRepository хранит связки в памяти процесса.
// Порядок вставки сохраняется. Наружу отдаются только копии.
type MemoryMappingRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.BridgeMapping
	order []string
}

// NewMemoryMappingRepository создает пустое хранилище
func NewMemoryMappingRepository() *MemoryMappingRepository {
	return &MemoryMappingRepository{
		byID: make(map[string]*models.BridgeMapping),
	}
}

// Create сохраняет копию связки
func (r *MemoryMappingRepository) Create(m *models.BridgeMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[m.ID]; exists {
		return ErrMappingExists
	}
	r.byID[m.ID] = m.Clone()
	r.order = append(r.order, m.ID)
	return nil
}

// GetByID возвращает копию связки
func (r *MemoryMappingRepository) GetByID(id string) (*models.BridgeMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, ErrMappingNotFound
	}
	return m.Clone(), nil
}

// GetAll возвращает копии в порядке вставки
func (r *MemoryMappingRepository) GetAll() ([]*models.BridgeMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.BridgeMapping, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out, nil
}

// Update заменяет изменяемые поля. Неизменяемые поля берутся из хранилища.
func (r *MemoryMappingRepository) Update(m *models.BridgeMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[m.ID]
	if !ok {
		return ErrMappingNotFound
	}

	updated := m.Clone()
	updated.SourceAccountID = current.SourceAccountID
	updated.TargetAccountID = current.TargetAccountID
	updated.CreatedAt = current.CreatedAt
	r.byID[m.ID] = updated
	return nil
}

// Delete удаляет связку
func (r *MemoryMappingRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrMappingNotFound
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count возвращает количество связок
func (r *MemoryMappingRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
