package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradebridge/internal/cache"
	"tradebridge/internal/models"
	"tradebridge/internal/repository"
)

// ============ Mock MappingRepository ============

type MockMappingRepository struct {
	mu        sync.Mutex
	mappings  map[string]*models.BridgeMapping
	order     []string
	createErr error
	getErr    error
	updateErr error
	deleteErr error
}

func NewMockMappingRepository() *MockMappingRepository {
	return &MockMappingRepository{
		mappings: make(map[string]*models.BridgeMapping),
	}
}

func (m *MockMappingRepository) Create(mapping *models.BridgeMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.mappings[mapping.ID]; exists {
		return repository.ErrMappingExists
	}
	m.mappings[mapping.ID] = mapping.Clone()
	m.order = append(m.order, mapping.ID)
	return nil
}

func (m *MockMappingRepository) GetByID(id string) (*models.BridgeMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	mapping, exists := m.mappings[id]
	if !exists {
		return nil, repository.ErrMappingNotFound
	}
	return mapping.Clone(), nil
}

func (m *MockMappingRepository) GetAll() ([]*models.BridgeMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.BridgeMapping, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.mappings[id].Clone())
	}
	return result, nil
}

func (m *MockMappingRepository) Update(mapping *models.BridgeMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.mappings[mapping.ID]; !exists {
		return repository.ErrMappingNotFound
	}
	m.mappings[mapping.ID] = mapping.Clone()
	return nil
}

func (m *MockMappingRepository) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.mappings[id]; !exists {
		return repository.ErrMappingNotFound
	}
	delete(m.mappings, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockMappingRepository) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mappings), nil
}

// ============ Mock AccountLookup ============

type MockAccountLookup struct {
	accounts map[string]*models.Account
}

func NewMockAccountLookup(accounts ...*models.Account) *MockAccountLookup {
	l := &MockAccountLookup{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		l.accounts[a.ID] = a
	}
	return l
}

func (l *MockAccountLookup) FindAccount(id string) (*models.Account, bool) {
	a, ok := l.accounts[id]
	if !ok {
		return nil, false
	}
	c := *a
	return &c, true
}

// ============ Mock EventPublisher ============

type MockPublisher struct {
	mu             sync.Mutex
	mappingUpdates []*models.BridgeMapping
	deleted        []string
	accountUpdates int
	lastCached     bool
	accountErrors  []string
}

func (p *MockPublisher) BroadcastMappingUpdate(m *models.BridgeMapping) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mappingUpdates = append(p.mappingUpdates, m)
}

func (p *MockPublisher) BroadcastMappingDeleted(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
}

func (p *MockPublisher) BroadcastAccountsUpdate(_ []*models.Account, _ time.Time, cached bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountUpdates++
	p.lastCached = cached
}

func (p *MockPublisher) BroadcastAccountsError(source, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountErrors = append(p.accountErrors, source)
}

// ============ Mock Source ============

type MockSource struct {
	name     string
	accounts []*models.Account
	err      error
	delay    time.Duration
	calls    int
	mu       sync.Mutex
}

func (s *MockSource) Name() string { return s.name }

func (s *MockSource) FetchAccounts(ctx context.Context) ([]*models.Account, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		c := *a
		out = append(out, &c)
	}
	return out, s.err
}

// ============ Mock AccountCreator ============

type MockCreator struct {
	platforms []string
	account   *models.Account
	err       error
	requests  []*models.NewAccountRequest
}

func (c *MockCreator) Name() string { return "metaapi" }

func (c *MockCreator) Platforms() []string { return c.platforms }

func (c *MockCreator) FetchAccounts(context.Context) ([]*models.Account, error) {
	return nil, nil
}

func (c *MockCreator) CreateAccount(_ context.Context, req *models.NewAccountRequest) (*models.Account, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	a := *c.account
	return &a, nil
}

// ============ Mock SnapshotCache ============

type MockSnapshotCache struct {
	snapshot *cache.CachedSnapshot
	saves    int
	saveErr  error
}

func (c *MockSnapshotCache) Save(_ context.Context, accounts []*models.Account, fetchedAt time.Time) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves++
	c.snapshot = &cache.CachedSnapshot{Accounts: accounts, FetchedAt: fetchedAt}
	return nil
}

func (c *MockSnapshotCache) Load(context.Context) (*cache.CachedSnapshot, error) {
	if c.snapshot == nil {
		return nil, cache.ErrCacheMiss
	}
	return c.snapshot, nil
}

var errBoom = errors.New("boom")

// ============ Тестовые данные ============

func hankoxDemo() *models.Account {
	return &models.Account{
		ID:                "hankox-1",
		Name:              "Hankox Demo",
		Platform:          models.PlatformHankox,
		Broker:            "Hankox",
		AccountIdentifier: "HX-100234",
		Balance:           10000,
		Equity:            10250.5,
		Currency:          "USD",
		AccountClass:      models.AccountClassDemo,
		ConnectionStatus:  models.ConnectionConnected,
	}
}

func tradeLockerDemo() *models.Account {
	return &models.Account{
		ID:                "tradelocker-1",
		Name:              "TradeLocker Demo",
		Platform:          models.PlatformTradeLocker,
		Broker:            "TradeLocker",
		AccountIdentifier: "TL-55012",
		Balance:           5000,
		Equity:            5120,
		Currency:          "USD",
		AccountClass:      models.AccountClassDemo,
		ConnectionStatus:  models.ConnectionConnected,
	}
}

func binanceFutures() *models.Account {
	return &models.Account{
		ID:               "binance-1",
		Name:             "Binance Futures",
		Platform:         models.PlatformBinance,
		Currency:         "USDT",
		AccountClass:     models.AccountClassLive,
		ConnectionStatus: models.ConnectionDisconnected,
	}
}
