package bridge

import (
	"context"
	"sync"
	"time"

	"tradebridge/pkg/utils"
)

// AccountRefresher перечитывает счета из всех источников.
// Сверка связок выполняется подписчиком обновления.
type AccountRefresher interface {
	RefreshAccounts(ctx context.Context) error
}

// ActiveSyncer отмечает синхронизацию активных связок
type ActiveSyncer interface {
	SyncActive(ctx context.Context) (int, error)
}

// PassResult - итог одного прохода обновления
type PassResult struct {
	Synced   int
	Duration time.Duration
}

// Refresher периодически обновляет счета и отмечает синхронизацию связок.
// Проходы по таймеру и ручные запуски не пересекаются.
type Refresher struct {
	accounts AccountRefresher
	syncer   ActiveSyncer
	interval time.Duration
	log      *utils.Logger

	runMu sync.Mutex

	mu       sync.RWMutex
	lastRun  time.Time
	lastErr  error
	runCount int
}

// NewRefresher создает обновлятель. interval <= 0 отключает таймер,
// ручной RunOnce при этом работает.
func NewRefresher(accounts AccountRefresher, syncer ActiveSyncer, interval time.Duration) *Refresher {
	return &Refresher{
		accounts: accounts,
		syncer:   syncer,
		interval: interval,
		log:      utils.L().WithComponent("refresher"),
	}
}

// Run выполняет первый проход сразу, затем по таймеру до отмены контекста
func (r *Refresher) Run(ctx context.Context) error {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.log.Warn("initial refresh failed", utils.Err(err))
	}

	if r.interval <= 0 {
		r.log.Info("periodic refresh disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("periodic refresh failed", utils.Err(err))
			}
		}
	}
}

// RunOnce выполняет один проход: обновление счетов, затем отметка синхронизации
func (r *Refresher) RunOnce(ctx context.Context) (*PassResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	res := &PassResult{}

	err := r.accounts.RefreshAccounts(ctx)
	if err == nil {
		res.Synced, err = r.syncer.SyncActive(ctx)
	}
	res.Duration = time.Since(start)

	r.mu.Lock()
	r.lastRun = start
	r.lastErr = err
	r.runCount++
	r.mu.Unlock()

	if err != nil {
		return res, err
	}

	r.log.Debug("refresh pass completed",
		utils.Int("synced", res.Synced),
		utils.Latency(float64(res.Duration.Microseconds())/1000),
	)
	return res, nil
}

// Status возвращает время и результат последнего прохода
func (r *Refresher) Status() (lastRun time.Time, lastErr error, runs int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, r.lastErr, r.runCount
}
