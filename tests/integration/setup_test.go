//go:build integration

// Package integration contains integration tests for the account bridge dashboard.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle through the router
// - WebSocket tests: connection, push of mapping and account events
// - Database tests: PostgreSQL mapping store (skipped without a database)
//
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"

	"tradebridge/internal/api"
	"tradebridge/internal/models"
	"tradebridge/internal/provider"
	"tradebridge/internal/repository"
	"tradebridge/internal/service"
	"tradebridge/internal/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	Router   *mux.Router
	Server   *httptest.Server
	Hub      *websocket.Hub
	Accounts *service.AccountService
	Mappings *service.MappingService
	Sources  *switchableSource
	Cleanup  func()
}

// WSURL возвращает адрес WebSocket эндпоинта
func (ts *TestServer) WSURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws/stream"
}

// switchableSource - статический источник, который можно уронить (fail)
// или опустошить (empty)
type switchableSource struct {
	*provider.StaticSource
	fail  atomic.Bool
	empty atomic.Bool
}

func (s *switchableSource) FetchAccounts(ctx context.Context) ([]*models.Account, error) {
	if s.fail.Load() {
		return nil, fmt.Errorf("%s: connection refused", s.Name())
	}
	if s.empty.Load() {
		return []*models.Account{}, nil
	}
	return s.StaticSource.FetchAccounts(ctx)
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "tradebridge_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection or skips the test
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot open database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := repository.EnsureSchema(db); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}
	if _, err := db.Exec("TRUNCATE bridge_mappings"); err != nil {
		db.Close()
		t.Fatalf("failed to truncate bridge_mappings: %v", err)
	}

	return db, func() { db.Close() }
}

// SetupTestServer собирает сервер на встроенном каталоге и in-memory хранилище.
// Источником tradelocker управляет ts.Sources.
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	catalog, err := provider.LoadCatalog("")
	if err != nil {
		t.Fatalf("failed to load embedded catalog: %v", err)
	}

	tradeLocker := &switchableSource{
		StaticSource: provider.NewStaticSource(models.PlatformTradeLocker, catalog.ForPlatform(models.PlatformTradeLocker)),
	}
	sources := []provider.Source{
		provider.NewStaticSource(models.PlatformHankox, catalog.ForPlatform(models.PlatformHankox)),
		tradeLocker,
		provider.NewStaticSource(models.PlatformBinance, catalog.ForPlatform(models.PlatformBinance)),
	}

	hub := websocket.NewHub()
	go hub.Run()

	accounts := service.NewAccountService(sources, nil)
	accounts.SetPublisher(hub)
	if _, err := accounts.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}

	mappings := service.NewMappingService(repository.NewMemoryMappingRepository(), accounts)
	mappings.SetPublisher(hub)
	accounts.OnRefresh(mappings.Reconcile)

	router := api.SetupRoutes(&api.Dependencies{
		AccountService: accounts,
		MappingService: mappings,
		Sizing:         service.NewSizingCalculator(mappings, accounts),
		Accounts:       accounts,
		Hub:            hub,
	})
	server := httptest.NewServer(router)

	ts := &TestServer{
		Router:   router,
		Server:   server,
		Hub:      hub,
		Accounts: accounts,
		Mappings: mappings,
		Sources:  tradeLocker,
	}
	ts.Cleanup = func() {
		server.Close()
		hub.Stop()
	}
	t.Cleanup(ts.Cleanup)
	return ts
}

// firstAccount возвращает первый счет платформы из снимка
func firstAccount(t *testing.T, ts *TestServer, platform string) *models.Account {
	t.Helper()
	for _, a := range ts.Accounts.Accounts() {
		if a.Platform == platform {
			return a
		}
	}
	t.Fatalf("no %s account in snapshot", platform)
	return nil
}
