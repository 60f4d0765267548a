package config

import (
	"strings"
	"testing"
	"time"

	"tradebridge/pkg/crypto"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

// clearEnv сбрасывает переменные, которые могли остаться в окружении CI
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_PORT", "SERVER_HOST", "STORE_BACKEND", "DB_PORT",
		"METAAPI_TOKEN", "METAAPI_ACCOUNT_IDS", "PROVIDER_TIMEOUT", "PROVIDER_RATE",
		"PROVIDER_MAX_RETRIES", "REDIS_ADDR", "ACCOUNT_CACHE_TTL",
		"REFRESH_INTERVAL", "DELETE_CONFIRM_TTL", "ENCRYPTION_KEY",
		"DEBUG_USERNAME", "DEBUG_PASSWORD_HASH", "LOG_DEVELOPMENT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Provider.Enabled() {
		t.Error("provider must be disabled without METAAPI_TOKEN")
	}
	if cfg.Redis.Enabled() {
		t.Error("redis must be disabled without REDIS_ADDR")
	}
	if cfg.Bridge.RefreshInterval != time.Minute {
		t.Errorf("RefreshInterval = %v, want 1m", cfg.Bridge.RefreshInterval)
	}
	if cfg.Bridge.DeleteConfirmTTL != 2*time.Minute {
		t.Errorf("DeleteConfirmTTL = %v, want 2m", cfg.Bridge.DeleteConfirmTTL)
	}
	if cfg.Provider.Rate != 5 || cfg.Provider.Burst != 10 || cfg.Provider.MaxRetries != 2 {
		t.Errorf("provider limits = %v/%v/%d, want 5/10/2",
			cfg.Provider.Rate, cfg.Provider.Burst, cfg.Provider.MaxRetries)
	}
	if cfg.Security.DebugEnabled() {
		t.Error("debug auth must be disabled by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("METAAPI_TOKEN", "plain-token")
	t.Setenv("METAAPI_ACCOUNT_IDS", "acc-1, acc-2,,")
	t.Setenv("PROVIDER_RATE", "2.5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REFRESH_INTERVAL", "0s")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Backend != StorePostgres {
		t.Errorf("Store.Backend = %q, want postgres", cfg.Store.Backend)
	}
	if !cfg.Provider.Enabled() || cfg.Provider.Token != "plain-token" {
		t.Errorf("Provider.Token = %q, want plain-token", cfg.Provider.Token)
	}
	if got := strings.Join(cfg.Provider.AccountIDs, "|"); got != "acc-1|acc-2" {
		t.Errorf("AccountIDs = %q, want acc-1|acc-2", got)
	}
	if cfg.Provider.Rate != 2.5 {
		t.Errorf("Provider.Rate = %v, want 2.5", cfg.Provider.Rate)
	}
	if !cfg.Redis.Enabled() {
		t.Error("redis must be enabled with REDIS_ADDR")
	}
	if cfg.Bridge.RefreshInterval != 0 {
		t.Errorf("RefreshInterval = %v, want 0", cfg.Bridge.RefreshInterval)
	}
	if !cfg.Logging.Development {
		t.Error("Logging.Development = false, want true")
	}
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("PROVIDER_TIMEOUT", "soon")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Provider.Timeout != 10*time.Second {
		t.Errorf("Provider.Timeout = %v, want default 10s", cfg.Provider.Timeout)
	}
}

func TestSealedProviderToken(t *testing.T) {
	sealed, err := crypto.Seal("secret-token", testEncryptionKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	t.Run("расшифровка", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("METAAPI_TOKEN", sealed)
		t.Setenv("ENCRYPTION_KEY", testEncryptionKey)

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv() error = %v", err)
		}
		if cfg.Provider.Token != "secret-token" {
			t.Errorf("Provider.Token = %q, want secret-token", cfg.Provider.Token)
		}
	})

	t.Run("без ключа", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("METAAPI_TOKEN", sealed)

		if _, err := FromEnv(); err == nil {
			t.Error("expected error without ENCRYPTION_KEY")
		}
	})

	t.Run("чужой ключ", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("METAAPI_TOKEN", sealed)
		t.Setenv("ENCRYPTION_KEY", strings.Repeat("x", 32))

		if _, err := FromEnv(); err == nil {
			t.Error("expected decrypt error with wrong key")
		}
	})
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}, "SERVER_PORT"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}, "STORE_BACKEND"},
		{"bad db port", map[string]string{"STORE_BACKEND": "postgres", "DB_PORT": "0"}, "DB_PORT"},
		{"short key", map[string]string{"ENCRYPTION_KEY": "short"}, "ENCRYPTION_KEY"},
		{"negative refresh", map[string]string{"REFRESH_INTERVAL": "-1s"}, "REFRESH_INTERVAL"},
		{"tiny confirm ttl", map[string]string{"DELETE_CONFIRM_TTL": "10ms"}, "DELETE_CONFIRM_TTL"},
		{"too many retries", map[string]string{"PROVIDER_MAX_RETRIES": "11"}, "PROVIDER_MAX_RETRIES"},
		{"zero rate", map[string]string{"PROVIDER_RATE": "0"}, "PROVIDER_RATE"},
		{"cache without ttl", map[string]string{"REDIS_ADDR": "localhost:6379", "ACCOUNT_CACHE_TTL": "0s"}, "ACCOUNT_CACHE_TTL"},
		{"debug user only", map[string]string{"DEBUG_USERNAME": "ops"}, "DEBUG_USERNAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			if err == nil {
				t.Fatalf("expected error mentioning %s", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "tradebridge", User: "u", Password: "p", SSLMode: "disable"}

	if !strings.Contains(d.DSN(), "password=p") {
		t.Errorf("DSN() should contain password: %s", d.DSN())
	}
	if strings.Contains(d.DSNWithoutPassword(), "password") {
		t.Errorf("DSNWithoutPassword() leaks password: %s", d.DSNWithoutPassword())
	}
}
