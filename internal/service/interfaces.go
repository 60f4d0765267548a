package service

import (
	"context"
	"time"

	"tradebridge/internal/cache"
	"tradebridge/internal/models"
	"tradebridge/internal/provider"
)

// MappingRepositoryInterface определяет интерфейс хранилища связок.
// Реализации: repository.MappingRepository (PostgreSQL) и
// repository.MemoryMappingRepository.
type MappingRepositoryInterface interface {
	Create(m *models.BridgeMapping) error
	GetByID(id string) (*models.BridgeMapping, error)
	GetAll() ([]*models.BridgeMapping, error)
	Update(m *models.BridgeMapping) error
	Delete(id string) error
	Count() (int, error)
}

// SnapshotCacheInterface определяет кеш последнего снимка счетов
type SnapshotCacheInterface interface {
	Save(ctx context.Context, accounts []*models.Account, fetchedAt time.Time) error
	Load(ctx context.Context) (*cache.CachedSnapshot, error)
}

// AccountLookup ищет счет в текущем снимке
type AccountLookup interface {
	FindAccount(id string) (*models.Account, bool)
}

// EventPublisher рассылает изменения подключенным клиентам
type EventPublisher interface {
	BroadcastMappingUpdate(m *models.BridgeMapping)
	BroadcastMappingDeleted(id string)
	BroadcastAccountsUpdate(accounts []*models.Account, fetchedAt time.Time, cached bool)
	BroadcastAccountsError(source, message string)
}

// noopPublisher используется, когда WebSocket не подключен
type noopPublisher struct{}

func (noopPublisher) BroadcastMappingUpdate(*models.BridgeMapping)               {}
func (noopPublisher) BroadcastMappingDeleted(string)                             {}
func (noopPublisher) BroadcastAccountsUpdate([]*models.Account, time.Time, bool) {}
func (noopPublisher) BroadcastAccountsError(string, string)                      {}

// ============ Интерфейсы сервисов для HTTP handlers ============

// AccountServiceInterface - операции со счетами
type AccountServiceInterface interface {
	Snapshot() *AccountSnapshot
	Refresh(ctx context.Context) (*AccountSnapshot, error)
	CreateAccount(ctx context.Context, req *models.NewAccountRequest) (*models.Account, error)
	Platforms() []provider.PlatformInfo
}

// MappingServiceInterface - операции со связками
type MappingServiceInterface interface {
	Create(input *models.MappingInput) (*models.BridgeMapping, error)
	Get(id string) (*models.BridgeMapping, error)
	List(status string) ([]*models.BridgeMapping, error)
	ToggleStatus(id string) (*models.BridgeMapping, error)
	TouchSync(id string) (*models.BridgeMapping, error)
	RequestDelete(id string) (*DeleteRequest, error)
	CancelDelete(id string)
	ConfirmDelete(id, token string) error
	PendingDelete(id string) (*DeleteRequest, bool)
}

// SizingCalculatorInterface - расчет объема копируемой сделки
type SizingCalculatorInterface interface {
	Preview(req *SizingRequest) (*SizingResult, error)
}

var (
	_ AccountServiceInterface   = (*AccountService)(nil)
	_ MappingServiceInterface   = (*MappingService)(nil)
	_ SizingCalculatorInterface = (*SizingCalculator)(nil)
	_ AccountLookup             = (*AccountService)(nil)
)
