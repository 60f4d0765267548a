package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradebridge/internal/models"
	"tradebridge/internal/provider"
	"tradebridge/internal/service"
)

// ErrMockDatabase - ошибка хранилища для тестов 500
var ErrMockDatabase = errors.New("mock database error")

var mockNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	snapshot   *service.AccountSnapshot
	refresh    *service.AccountSnapshot
	refreshErr error
	created    *models.Account
	createErr  error
	lastReq    *models.NewAccountRequest
	mu         sync.Mutex
}

func NewMockAccountService(accounts ...*models.Account) *MockAccountService {
	return &MockAccountService{
		snapshot: &service.AccountSnapshot{Accounts: accounts, FetchedAt: mockNow},
	}
}

func (m *MockAccountService) Snapshot() *service.AccountSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *MockAccountService) Refresh(ctx context.Context) (*service.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	if m.refresh != nil {
		m.snapshot = m.refresh
	}
	return m.snapshot, nil
}

func (m *MockAccountService) CreateAccount(ctx context.Context, req *models.NewAccountRequest) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *MockAccountService) Platforms() []provider.PlatformInfo {
	return provider.DescribePlatforms(nil)
}

func (m *MockAccountService) FindAccount(id string) (*models.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.snapshot.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// ============ Mock Mapping Service ============

// MockMappingService мок для MappingServiceInterface
type MockMappingService struct {
	mappings  map[string]*models.BridgeMapping
	order     []string
	pending   map[string]*service.DeleteRequest
	createErr error
	listErr   error
	toggleErr error
	nextID    int
	mu        sync.Mutex
}

func NewMockMappingService() *MockMappingService {
	return &MockMappingService{
		mappings: make(map[string]*models.BridgeMapping),
		pending:  make(map[string]*service.DeleteRequest),
		nextID:   1,
	}
}

// add кладет связку напрямую, минуя валидацию
func (m *MockMappingService) add(mapping *models.BridgeMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[mapping.ID] = mapping
	m.order = append(m.order, mapping.ID)
}

func (m *MockMappingService) Create(input *models.MappingInput) (*models.BridgeMapping, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	id := fmt.Sprintf("m-%d", m.nextID)
	m.nextID++
	m.mu.Unlock()

	lastSync := mockNow
	mapping := &models.BridgeMapping{
		ID:              id,
		SourceAccountID: input.SourceAccountID,
		TargetAccountID: input.TargetAccountID,
		Name:            input.Name,
		Status:          models.MappingStatusActive,
		SyncMode:        input.SyncMode,
		PositionSizing:  input.PositionSizing,
		PositionValue:   input.PositionValue,
		CreatedAt:       mockNow,
		LastSyncAt:      &lastSync,
	}
	m.add(mapping)
	return mapping, nil
}

func (m *MockMappingService) Get(id string) (*models.BridgeMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[id]
	if !ok {
		return nil, &service.NotFoundError{ID: id}
	}
	return mapping.Clone(), nil
}

func (m *MockMappingService) List(status string) ([]*models.BridgeMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.BridgeMapping, 0, len(m.order))
	for _, id := range m.order {
		if status == "" || m.mappings[id].Status == status {
			result = append(result, m.mappings[id].Clone())
		}
	}
	return result, nil
}

func (m *MockMappingService) ToggleStatus(id string) (*models.BridgeMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toggleErr != nil {
		return nil, m.toggleErr
	}
	mapping, ok := m.mappings[id]
	if !ok {
		return nil, &service.NotFoundError{ID: id}
	}
	switch mapping.Status {
	case models.MappingStatusActive:
		mapping.Status = models.MappingStatusInactive
	case models.MappingStatusInactive:
		mapping.Status = models.MappingStatusActive
	default:
		return nil, service.ErrMappingInError
	}
	return mapping.Clone(), nil
}

func (m *MockMappingService) TouchSync(id string) (*models.BridgeMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[id]
	if !ok {
		return nil, &service.NotFoundError{ID: id}
	}
	later := mockNow.Add(time.Minute)
	mapping.LastSyncAt = &later
	return mapping.Clone(), nil
}

func (m *MockMappingService) RequestDelete(id string) (*service.DeleteRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[id]; !ok {
		return nil, &service.NotFoundError{ID: id}
	}
	req := &service.DeleteRequest{MappingID: id, Token: "token-" + id, ExpiresAt: mockNow.Add(2 * time.Minute)}
	m.pending[id] = req
	return req, nil
}

func (m *MockMappingService) CancelDelete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
}

func (m *MockMappingService) ConfirmDelete(id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.pending[id]
	if !ok || req.Token != token {
		return service.ErrDeleteNotConfirmed
	}
	delete(m.pending, id)
	delete(m.mappings, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockMappingService) PendingDelete(id string) (*service.DeleteRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.pending[id]
	return req, ok
}

// ============ Mock Sizing ============

type MockSizingCalculator struct {
	result *service.SizingResult
	err    error
	last   *service.SizingRequest
}

func (c *MockSizingCalculator) Preview(req *service.SizingRequest) (*service.SizingResult, error) {
	c.last = req
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

// ============ Тестовые данные ============

func hankoxDemo() *models.Account {
	return &models.Account{
		ID:               "hankox-1",
		Name:             "Hankox Demo",
		Platform:         models.PlatformHankox,
		Balance:          10000,
		Equity:           10250.5,
		Currency:         "USD",
		AccountClass:     models.AccountClassDemo,
		ConnectionStatus: models.ConnectionConnected,
	}
}

func tradeLockerDemo() *models.Account {
	return &models.Account{
		ID:               "tradelocker-1",
		Name:             "TradeLocker Demo",
		Platform:         models.PlatformTradeLocker,
		Balance:          5000,
		Equity:           5120,
		Currency:         "USD",
		AccountClass:     models.AccountClassDemo,
		ConnectionStatus: models.ConnectionConnected,
	}
}

func sampleMapping(id, status string) *models.BridgeMapping {
	lastSync := mockNow
	m := &models.BridgeMapping{
		ID:              id,
		SourceAccountID: "hankox-1",
		TargetAccountID: "tradelocker-1",
		Name:            "Hankox Demo to TradeLocker Demo",
		Status:          status,
		SyncMode:        models.SyncModeOneWay,
		PositionSizing:  models.SizingPercentage,
		PositionValue:   100,
		CreatedAt:       mockNow,
		LastSyncAt:      &lastSync,
	}
	if status == models.MappingStatusError {
		msg := "account tradelocker-1 is no longer available"
		m.Error = &msg
	}
	return m
}
