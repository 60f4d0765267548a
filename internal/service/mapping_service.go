package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradebridge/internal/bridge"
	"tradebridge/internal/models"
	"tradebridge/internal/repository"
	"tradebridge/pkg/utils"
)

// DefaultDeleteConfirmTTL - время жизни токена подтверждения удаления
const DefaultDeleteConfirmTTL = 2 * time.Minute

// timestampPrecision - точность TIMESTAMPTZ в PostgreSQL
const timestampPrecision = time.Microsecond

// Операции для метрик
const (
	opCreate  = "create"
	opRemove  = "remove"
	opToggle  = "toggle"
	opSync    = "sync"
	opConfirm = "delete_confirm"
)

// DeleteRequest - выданный токен подтверждения удаления
type DeleteRequest struct {
	MappingID string    `json:"mapping_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MappingService - бизнес-логика связок счетов
//
// Отвечает за:
// - Валидацию и создание связок
// - Переключение active/inactive и отметку синхронизации
// - Двухфазное удаление с токеном подтверждения
// - Сверку связок со снимком счетов после каждого обновления
type MappingService struct {
	repo      MappingRepositoryInterface
	accounts  AccountLookup
	publisher EventPublisher
	log       *utils.Logger

	// mu сериализует изменяющие операции: чтение-изменение-запись
	// одной связки не перемешивается с другими
	mu sync.Mutex

	pendingMu      sync.Mutex
	pendingDeletes map[string]*DeleteRequest
	confirmTTL     time.Duration

	now   func() time.Time
	newID func() string
}

// NewMappingService создает сервис связок
func NewMappingService(repo MappingRepositoryInterface, accounts AccountLookup) *MappingService {
	return &MappingService{
		repo:           repo,
		accounts:       accounts,
		publisher:      noopPublisher{},
		log:            utils.L().WithComponent("mappings"),
		pendingDeletes: make(map[string]*DeleteRequest),
		confirmTTL:     DefaultDeleteConfirmTTL,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.New().String() },
	}
}

// SetPublisher подключает рассылку событий
func (s *MappingService) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	s.publisher = p
}

// SetConfirmTTL задает время жизни токена подтверждения удаления
func (s *MappingService) SetConfirmTTL(ttl time.Duration) {
	if ttl > 0 {
		s.confirmTTL = ttl
	}
}

// ============ Создание ============

// Create валидирует форму и сохраняет новую связку.
// При ошибке валидации хранилище не меняется.
func (s *MappingService) Create(input *models.MappingInput) (*models.BridgeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.build(input)
	if err != nil {
		bridge.RecordMappingOperation(opCreate, err)
		return nil, err
	}

	if err := s.repo.Create(m); err != nil {
		bridge.RecordMappingOperation(opCreate, err)
		return nil, fmt.Errorf("save mapping: %w", err)
	}
	bridge.RecordMappingOperation(opCreate, nil)
	s.refreshGauge()

	s.log.Info("mapping created",
		utils.MappingID(m.ID),
		utils.String("source_account_id", m.SourceAccountID),
		utils.String("target_account_id", m.TargetAccountID),
		utils.SyncMode(m.SyncMode),
		utils.Sizing(m.PositionSizing),
	)
	s.publisher.BroadcastMappingUpdate(m.Clone())
	return m.Clone(), nil
}

// build проверяет форму и собирает запись. Собирает ошибки всех полей.
func (s *MappingService) build(input *models.MappingInput) (*models.BridgeMapping, error) {
	if input == nil {
		return nil, fieldError("source_account_id", utils.ErrEmptyValue.Error())
	}

	sourceID := strings.TrimSpace(input.SourceAccountID)
	targetID := strings.TrimSpace(input.TargetAccountID)
	name := strings.TrimSpace(input.Name)
	syncMode := utils.NormalizeEnum(input.SyncMode)
	sizing := utils.NormalizeEnum(input.PositionSizing)

	var errs utils.ValidationErrors

	// 1. Счета
	var source, target *models.Account
	if sourceID == "" {
		errs.Add("source_account_id", utils.ErrEmptyValue.Error())
	} else if acc, ok := s.accounts.FindAccount(sourceID); !ok {
		errs.Add("source_account_id", fmt.Sprintf("account %s not found", sourceID))
	} else {
		source = acc
	}

	if targetID == "" {
		errs.Add("target_account_id", utils.ErrEmptyValue.Error())
	} else if sourceID == targetID {
		errs.Add("target_account_id", "source and target accounts must be different")
	} else if acc, ok := s.accounts.FindAccount(targetID); !ok {
		errs.Add("target_account_id", fmt.Sprintf("account %s not found", targetID))
	} else {
		target = acc
	}

	// 2. Перечисления
	errs.AddError("sync_mode", utils.ValidateOneOf(syncMode, models.SyncModes...))
	errs.AddError("position_sizing", utils.ValidateOneOf(sizing, models.Sizings...))

	// 3. Значение объема зависит от стратегии
	if min, max, ok := models.PositionValueRange(sizing); ok {
		v := input.PositionValue
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs.Add("position_value", "must be a finite number")
		} else {
			errs.AddError("position_value", utils.ValidateRange(v, min, max))
		}
	}

	// 4. Имя
	errs.AddError("name", utils.ValidateName(name))

	if errs.HasErrors() {
		return nil, newValidationError(errs)
	}

	if name == "" {
		name = source.Name + " to " + target.Name
	}

	now := s.stamp()
	lastSync := now
	return &models.BridgeMapping{
		ID:              s.newID(),
		SourceAccountID: sourceID,
		TargetAccountID: targetID,
		Name:            name,
		Status:          models.MappingStatusActive,
		SyncMode:        syncMode,
		PositionSizing:  sizing,
		PositionValue:   input.PositionValue,
		CreatedAt:       now,
		LastSyncAt:      &lastSync,
	}, nil
}

// ============ Изменение ============

// Remove удаляет связку. Отсутствующий id не является ошибкой.
func (s *MappingService) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(id)
}

func (s *MappingService) removeLocked(id string) error {
	err := s.repo.Delete(id)
	if errors.Is(err, repository.ErrMappingNotFound) {
		bridge.RecordMappingNoop(opRemove)
		s.clearPending(id)
		return nil
	}
	bridge.RecordMappingOperation(opRemove, err)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}

	s.clearPending(id)
	s.refreshGauge()
	s.log.Info("mapping removed", utils.MappingID(id))
	s.publisher.BroadcastMappingDeleted(id)
	return nil
}

// ToggleStatus переключает active <-> inactive.
// Связку в статусе error переключить нельзя: ErrMappingInError.
func (s *MappingService) ToggleStatus(id string) (*models.BridgeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(id)
	if err != nil {
		bridge.RecordMappingOperation(opToggle, err)
		return nil, err
	}

	next, ok := bridge.ToggleTarget(m.Status)
	if !ok {
		bridge.RecordMappingOperation(opToggle, ErrMappingInError)
		return nil, ErrMappingInError
	}

	prev := m.Status
	m.Status = next
	if err := s.save(m); err != nil {
		bridge.RecordMappingOperation(opToggle, err)
		return nil, err
	}
	bridge.RecordMappingOperation(opToggle, nil)
	s.refreshGauge()

	s.log.Info("mapping status changed",
		utils.MappingID(id),
		utils.String("from", prev),
		utils.MappingStatus(next),
	)
	s.publisher.BroadcastMappingUpdate(m.Clone())
	return m, nil
}

// TouchSync выставляет last_sync_at = now, остальные поля не меняются
func (s *MappingService) TouchSync(id string) (*models.BridgeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.touchLocked(id)
	bridge.RecordMappingOperation(opSync, err)
	return m, err
}

func (s *MappingService) touchLocked(id string) (*models.BridgeMapping, error) {
	m, err := s.load(id)
	if err != nil {
		return nil, err
	}

	now := s.stamp()
	m.LastSyncAt = &now
	if err := s.save(m); err != nil {
		return nil, err
	}

	s.publisher.BroadcastMappingUpdate(m.Clone())
	return m, nil
}

// SyncActive отмечает синхронизацию у всех активных связок.
// Возвращает количество отмеченных связок.
func (s *MappingService) SyncActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.repo.GetAll()
	if err != nil {
		return 0, fmt.Errorf("list mappings: %w", err)
	}

	synced := 0
	for _, m := range all {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if m.Status != models.MappingStatusActive {
			continue
		}
		_, err := s.touchLocked(m.ID)
		bridge.RecordMappingOperation(opSync, err)
		if errors.Is(err, ErrMappingNotFound) {
			continue
		}
		if err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

// ============ Чтение ============

// Get возвращает связку по id
func (s *MappingService) Get(id string) (*models.BridgeMapping, error) {
	return s.load(id)
}

// List возвращает связки в порядке создания.
// Пустой status - без фильтра.
func (s *MappingService) List(status string) ([]*models.BridgeMapping, error) {
	status = utils.NormalizeEnum(status)
	if status != "" {
		if _, known := bridge.ValidTransitions[status]; !known {
			return nil, fieldError("status", utils.ValidateOneOf(status,
				models.MappingStatusActive, models.MappingStatusInactive, models.MappingStatusError).Error())
		}
	}

	all, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	if status == "" {
		return all, nil
	}

	filtered := make([]*models.BridgeMapping, 0, len(all))
	for _, m := range all {
		if m.Status == status {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// Count возвращает количество связок
func (s *MappingService) Count() (int, error) {
	return s.repo.Count()
}

// ============ Двухфазное удаление ============

// RequestDelete выдает одноразовый токен подтверждения удаления.
// Повторный запрос заменяет предыдущий токен.
func (s *MappingService) RequestDelete(id string) (*DeleteRequest, error) {
	if _, err := s.load(id); err != nil {
		return nil, err
	}

	req := &DeleteRequest{
		MappingID: id,
		Token:     uuid.New().String(),
		ExpiresAt: s.now().Add(s.confirmTTL),
	}

	s.pendingMu.Lock()
	s.pendingDeletes[id] = req
	s.pendingMu.Unlock()

	s.log.Debug("delete confirmation requested", utils.MappingID(id))
	out := *req
	return &out, nil
}

// CancelDelete отменяет запрос удаления. Отсутствующий запрос не ошибка.
func (s *MappingService) CancelDelete(id string) {
	s.clearPending(id)
}

// ConfirmDelete удаляет связку при верном и не просроченном токене.
// Токен одноразовый, неверный токен не сбрасывает выданный.
func (s *MappingService) ConfirmDelete(id, token string) error {
	s.pendingMu.Lock()
	req, ok := s.pendingDeletes[id]
	valid := ok && token != "" && req.Token == token
	expired := ok && s.now().After(req.ExpiresAt)
	if valid || expired {
		delete(s.pendingDeletes, id)
	}
	s.pendingMu.Unlock()

	if !valid || expired {
		bridge.RecordMappingOperation(opConfirm, ErrDeleteNotConfirmed)
		return ErrDeleteNotConfirmed
	}
	bridge.RecordMappingOperation(opConfirm, nil)

	return s.Remove(id)
}

// PendingDelete возвращает активный запрос удаления, если он есть
func (s *MappingService) PendingDelete(id string) (*DeleteRequest, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	req, ok := s.pendingDeletes[id]
	if !ok || s.now().After(req.ExpiresAt) {
		return nil, false
	}
	out := *req
	return &out, true
}

func (s *MappingService) clearPending(id string) {
	s.pendingMu.Lock()
	delete(s.pendingDeletes, id)
	s.pendingMu.Unlock()
}

// ============ Сверка со снимком счетов ============

// Reconcile переводит связки с пропавшими счетами в error и
// возвращает в inactive связки, чьи счета снова доступны.
//
// При частичном сбое источников пропажа счета не доказана,
// поэтому в error ничего не переводится.
func (s *MappingService) Reconcile(snap *AccountSnapshot) {
	if snap == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]bool, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		present[acc.ID] = true
	}

	all, err := s.repo.GetAll()
	if err != nil {
		s.log.Error("reconcile: failed to list mappings", utils.Err(err))
		return
	}

	changed := 0
	for _, m := range all {
		missing := ""
		for _, id := range []string{m.SourceAccountID, m.TargetAccountID} {
			if !present[id] {
				missing = id
				break
			}
		}

		var next string
		switch {
		case missing != "" && m.Status != models.MappingStatusError && !snap.HasErrors():
			next = models.MappingStatusError
			msg := fmt.Sprintf("account %s is no longer available", missing)
			m.Error = &msg
		case missing == "" && m.Status == models.MappingStatusError:
			next = models.MappingStatusInactive
			m.Error = nil
		default:
			continue
		}

		if !bridge.CanTransition(m.Status, next) {
			continue
		}
		prev := m.Status
		m.Status = next
		if err := s.save(m); err != nil {
			s.log.Error("reconcile: failed to update mapping", utils.MappingID(m.ID), utils.Err(err))
			continue
		}
		changed++

		s.log.Warn("mapping status reconciled",
			utils.MappingID(m.ID),
			utils.String("from", prev),
			utils.MappingStatus(next),
		)
		s.publisher.BroadcastMappingUpdate(m.Clone())
	}

	if changed > 0 {
		s.refreshGauge()
	}
}

// ============ Вспомогательные ============

// stamp возвращает время для сохраняемых полей связки.
// Хранилища не должны терять точность: запись после чтения
// совпадает с возвращенной из Create и TouchSync.
func (s *MappingService) stamp() time.Time {
	return s.now().UTC().Truncate(timestampPrecision)
}

func (s *MappingService) load(id string) (*models.BridgeMapping, error) {
	m, err := s.repo.GetByID(id)
	if errors.Is(err, repository.ErrMappingNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

func (s *MappingService) save(m *models.BridgeMapping) error {
	err := s.repo.Update(m)
	if errors.Is(err, repository.ErrMappingNotFound) {
		return &NotFoundError{ID: m.ID}
	}
	if err != nil {
		return fmt.Errorf("update mapping: %w", err)
	}
	return nil
}

// refreshGauge пересчитывает gauge связок по статусам
func (s *MappingService) refreshGauge() {
	all, err := s.repo.GetAll()
	if err != nil {
		return
	}
	counts := make(map[string]int, len(bridge.ValidTransitions))
	for _, m := range all {
		counts[m.Status]++
	}
	bridge.UpdateMappingCounts(counts)
}
