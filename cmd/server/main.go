package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"tradebridge/internal/api"
	"tradebridge/internal/bridge"
	"tradebridge/internal/cache"
	"tradebridge/internal/config"
	"tradebridge/internal/provider"
	"tradebridge/internal/repository"
	"tradebridge/internal/service"
	"tradebridge/internal/websocket"
	"tradebridge/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", utils.Err(err))
	}
	log.Info("server exited")
}

func run(cfg *config.Config, log *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище связок
	repo, closeStore, err := initStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Источники счетов
	opts := provider.Options{CatalogPath: cfg.Catalog.Path, Logger: log}
	if cfg.Provider.Enabled() {
		opts.MetaApi = &provider.MetaApiConfig{
			ProvisioningURL: cfg.Provider.ProvisioningURL,
			ClientURL:       cfg.Provider.ClientURL,
			Token:           cfg.Provider.Token,
			AccountIDs:      cfg.Provider.AccountIDs,
			Timeout:         cfg.Provider.Timeout,
			Rate:            cfg.Provider.Rate,
			Burst:           cfg.Provider.Burst,
			MaxRetries:      cfg.Provider.MaxRetries,
		}
	}
	sources, creator, err := provider.Build(opts)
	if err != nil {
		return fmt.Errorf("build account sources: %w", err)
	}
	defer closeSources(sources, log)

	// WebSocket hub
	hub := websocket.NewHub(cfg.Server.AllowedOrigins...)
	go hub.Run()
	defer hub.Stop()

	if err := bridge.RegisterDroppedMessages(prometheus.DefaultRegisterer, hub.DroppedMessages); err != nil {
		log.Warn("dropped messages metric not registered", utils.Err(err))
	}

	// Сервисы
	accountService := service.NewAccountService(sources, creator)
	accountService.SetPublisher(hub)

	if cfg.Redis.Enabled() {
		rc, err := cache.New(ctx, cache.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// без кеша сервис работает, только медленнее стартует
			log.Warn("redis unavailable, account cache disabled", utils.Err(err))
		} else {
			defer rc.Close()
			accountService.SetCache(cache.NewSnapshotCache(rc, cfg.Redis.TTL))
		}
	}

	mappingService := service.NewMappingService(repo, accountService)
	mappingService.SetPublisher(hub)
	mappingService.SetConfirmTTL(cfg.Bridge.DeleteConfirmTTL)
	accountService.OnRefresh(mappingService.Reconcile)

	sizing := service.NewSizingCalculator(mappingService, accountService)

	if accountService.Warmup(ctx) {
		log.Info("account snapshot restored from cache")
	}

	// Фоновое обновление счетов
	refresher := bridge.NewRefresher(accountService, mappingService, cfg.Bridge.RefreshInterval)
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("refresher stopped", utils.Err(err))
		}
	}()

	// HTTP роутер
	router := api.SetupRoutes(&api.Dependencies{
		AccountService:    accountService,
		MappingService:    mappingService,
		Sizing:            sizing,
		Accounts:          accountService,
		Hub:               hub,
		Logger:            log,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		DebugUsername:     cfg.Security.DebugUsername,
		DebugPasswordHash: cfg.Security.DebugPasswordHash,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server",
			utils.String("addr", server.Addr),
			utils.String("store", cfg.Store.Backend),
			utils.Count(len(sources)),
			utils.Bool("debug_auth", cfg.Security.DebugEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-serverErr:
		if err != nil {
			stop()
			<-refreshDone
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-refreshDone
	return nil
}

// initStore создает хранилище связок по STORE_BACKEND
func initStore(cfg *config.Config, log *utils.Logger) (service.MappingRepositoryInterface, func(), error) {
	if cfg.Store.Backend != config.StorePostgres {
		log.Info("using in-memory mapping store")
		return repository.NewMemoryMappingRepository(), func() {}, nil
	}

	db, err := initDatabase(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.EnsureSchema(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	return repository.NewMappingRepository(db), func() { db.Close() }, nil
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// closeSources закрывает источники, держащие соединения
func closeSources(sources []provider.Source, log *utils.Logger) {
	for _, src := range sources {
		c, ok := src.(provider.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			log.Warn("failed to close account source", utils.Source(src.Name()), utils.Err(err))
		}
	}
}
