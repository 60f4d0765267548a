package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tradebridge/internal/bridge"
	"tradebridge/internal/cache"
	"tradebridge/internal/models"
	"tradebridge/internal/provider"
	"tradebridge/pkg/utils"
)

// AccountSnapshot - результат одного обновления списка счетов.
// Счета идут в порядке источников. Errors содержит по одной ошибке
// на каждый упавший источник.
type AccountSnapshot struct {
	Accounts  []*models.Account
	Errors    []*FetchError
	FetchedAt time.Time
	Cached    bool
}

// HasErrors возвращает true если хотя бы один источник упал
func (s *AccountSnapshot) HasErrors() bool {
	return len(s.Errors) > 0
}

// AccountService собирает счета из всех источников и хранит последний снимок.
//
// Отвечает за:
// - Параллельный опрос источников с сохранением порядка
// - Отчет об ошибках источников вместо молчаливой деградации
// - Кеширование последнего успешного снимка в Redis
// - Подключение новых счетов MT4/MT5 через удаленного провайдера
type AccountService struct {
	sources   []provider.Source
	creator   provider.AccountCreator
	cache     SnapshotCacheInterface
	publisher EventPublisher
	log       *utils.Logger

	mu       sync.RWMutex
	snapshot *AccountSnapshot
	byID     map[string]*models.Account

	refreshMu sync.Mutex // обновления не пересекаются
	listeners []func(*AccountSnapshot)
}

// NewAccountService создает сервис. creator может быть nil.
func NewAccountService(sources []provider.Source, creator provider.AccountCreator) *AccountService {
	return &AccountService{
		sources:   sources,
		creator:   creator,
		publisher: noopPublisher{},
		log:       utils.L().WithComponent("accounts"),
		snapshot:  &AccountSnapshot{Accounts: []*models.Account{}},
		byID:      map[string]*models.Account{},
	}
}

// SetCache подключает кеш снимков
func (s *AccountService) SetCache(c SnapshotCacheInterface) {
	s.cache = c
}

// SetPublisher подключает рассылку событий
func (s *AccountService) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	s.publisher = p
}

// OnRefresh регистрирует обработчик, вызываемый после каждого живого обновления
func (s *AccountService) OnRefresh(fn func(*AccountSnapshot)) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Warmup подставляет снимок из кеша, пока живое обновление не завершилось.
// Возвращает false если кеша нет или он пуст.
func (s *AccountService) Warmup(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}

	cached, err := s.cache.Load(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("failed to load cached account snapshot", utils.Err(err))
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// живой снимок мог появиться раньше
	if !s.snapshot.FetchedAt.IsZero() {
		return false
	}
	s.setSnapshotLocked(&AccountSnapshot{
		Accounts:  cached.Accounts,
		FetchedAt: cached.FetchedAt,
		Cached:    true,
	})

	s.log.Info("serving cached account snapshot",
		utils.Count(len(cached.Accounts)),
		utils.String("fetched_at", cached.FetchedAt.Format(time.RFC3339)),
	)
	return true
}

// Refresh опрашивает все источники и заменяет снимок.
// Ошибка возвращается только при отмене контекста, сбои источников
// попадают в AccountSnapshot.Errors.
func (s *AccountService) Refresh(ctx context.Context) (*AccountSnapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.setSnapshotLocked(snap)
	s.mu.Unlock()

	// 1. Кешируем только снимок без ошибок
	if s.cache != nil && !snap.HasErrors() {
		if err := s.cache.Save(ctx, snap.Accounts, snap.FetchedAt); err != nil {
			s.log.Warn("failed to cache account snapshot", utils.Err(err))
		}
	}

	// 2. Рассылаем клиентам
	s.publisher.BroadcastAccountsUpdate(snap.Accounts, snap.FetchedAt, false)
	for _, fe := range snap.Errors {
		s.publisher.BroadcastAccountsError(fe.Source, fe.Err.Error())
	}

	// 3. Уведомляем подписчиков (сверка связок)
	for _, fn := range s.listeners {
		fn(snap)
	}

	s.log.Info("accounts refreshed",
		utils.Count(len(snap.Accounts)),
		utils.Int("failed_sources", len(snap.Errors)),
	)

	return s.Snapshot(), nil
}

// RefreshAccounts - Refresh без результата, для фонового обновления
func (s *AccountService) RefreshAccounts(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// fetchAll опрашивает источники параллельно. Результаты пишутся по индексу
// источника, поэтому порядок счетов не зависит от скорости ответов.
func (s *AccountService) fetchAll(ctx context.Context) (*AccountSnapshot, error) {
	results := make([][]*models.Account, len(s.sources))
	errs := make([]error, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			start := time.Now()
			accounts, err := src.FetchAccounts(gctx)
			bridge.RecordAccountFetch(src.Name(), err, time.Since(start))

			results[i] = accounts
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &AccountSnapshot{
		Accounts:  []*models.Account{},
		FetchedAt: time.Now().UTC(),
	}
	seen := make(map[string]string)

	for i, src := range s.sources {
		if errs[i] != nil {
			s.log.Warn("account source failed", utils.Source(src.Name()), utils.Err(errs[i]))
			snap.Errors = append(snap.Errors, &FetchError{Source: src.Name(), Err: errs[i]})
		}
		for _, acc := range results[i] {
			if acc == nil {
				continue
			}
			if owner, dup := seen[acc.ID]; dup {
				s.log.Warn("duplicate account id skipped",
					utils.AccountID(acc.ID),
					utils.Source(src.Name()),
					utils.String("first_source", owner),
				)
				continue
			}
			seen[acc.ID] = src.Name()
			snap.Accounts = append(snap.Accounts, acc)
		}
	}

	return snap, nil
}

// setSnapshotLocked заменяет снимок. Вызывается под s.mu.
func (s *AccountService) setSnapshotLocked(snap *AccountSnapshot) {
	byID := make(map[string]*models.Account, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		byID[acc.ID] = acc
	}
	s.snapshot = snap
	s.byID = byID
}

// Snapshot возвращает копию текущего снимка
func (s *AccountService) Snapshot() *AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &AccountSnapshot{
		Accounts:  make([]*models.Account, 0, len(s.snapshot.Accounts)),
		Errors:    append([]*FetchError(nil), s.snapshot.Errors...),
		FetchedAt: s.snapshot.FetchedAt,
		Cached:    s.snapshot.Cached,
	}
	for _, acc := range s.snapshot.Accounts {
		a := *acc
		out.Accounts = append(out.Accounts, &a)
	}
	return out
}

// Accounts возвращает счета текущего снимка
func (s *AccountService) Accounts() []*models.Account {
	return s.Snapshot().Accounts
}

// FindAccount ищет счет в текущем снимке
func (s *AccountService) FindAccount(id string) (*models.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	a := *acc
	return &a, true
}

// Platforms возвращает платформы и признак поддержки создания счетов
func (s *AccountService) Platforms() []provider.PlatformInfo {
	return provider.DescribePlatforms(s.creator)
}

// CreateAccount подключает новый счет у удаленного провайдера.
//
// Возвращает:
// - ValidationError при неверных полях формы
// - ErrPlatformNotSupported если для платформы нет провайдера
// - FetchError если провайдер отклонил запрос
func (s *AccountService) CreateAccount(ctx context.Context, req *models.NewAccountRequest) (*models.Account, error) {
	// 1. Валидация формы
	req.Platform = utils.NormalizeEnum(req.Platform)
	req.Name = strings.TrimSpace(req.Name)
	req.Broker = strings.TrimSpace(req.Broker)

	var errs utils.ValidationErrors
	if req.Name == "" {
		errs.Add("name", utils.ErrEmptyValue.Error())
	} else {
		errs.AddError("name", utils.ValidateName(req.Name))
	}
	errs.AddError("login", utils.ValidateLogin(req.Login))
	errs.AddError("password", utils.ValidatePassword(req.Password))
	errs.AddError("server", utils.ValidateServer(req.Server))
	if !models.IsValidPlatform(req.Platform) {
		errs.AddError("platform", utils.ValidateOneOf(req.Platform, models.Platforms...))
	}
	if errs.HasErrors() {
		return nil, newValidationError(errs)
	}

	// 2. Поддерживает ли провайдер платформу
	if !s.canCreate(req.Platform) {
		return nil, ErrPlatformNotSupported
	}

	// 3. Регистрация у провайдера
	acc, err := s.creator.CreateAccount(ctx, req)
	if err != nil {
		s.log.Error("account creation failed", utils.Platform(req.Platform), utils.Err(err))
		return nil, &FetchError{Source: providerName(s.creator), Err: err}
	}

	// 4. Счет сразу появляется в снимке, полные данные придут при обновлении
	s.mu.Lock()
	if _, exists := s.byID[acc.ID]; !exists {
		next := *s.snapshot
		next.Accounts = append(append([]*models.Account(nil), s.snapshot.Accounts...), acc)
		s.setSnapshotLocked(&next)
	}
	snap := s.snapshot
	s.mu.Unlock()

	s.publisher.BroadcastAccountsUpdate(snap.Accounts, snap.FetchedAt, snap.Cached)

	s.log.Info("account created", utils.AccountID(acc.ID), utils.Platform(acc.Platform))
	return acc, nil
}

func (s *AccountService) canCreate(platform string) bool {
	if s.creator == nil {
		return false
	}
	for _, p := range s.creator.Platforms() {
		if p == platform {
			return true
		}
	}
	return false
}

func providerName(creator provider.AccountCreator) string {
	if src, ok := creator.(provider.Source); ok {
		return src.Name()
	}
	return "provider"
}
