package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradebridge/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Catalog  CatalogConfig
	Redis    RedisConfig
	Bridge   BridgeConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// StoreConfig - выбор хранилища связок
type StoreConfig struct {
	Backend string // memory | postgres
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// DatabaseConfig - настройки подключения к БД (только для STORE_BACKEND=postgres)
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// ProviderConfig - удаленный провайдер счетов MetaTrader
type ProviderConfig struct {
	ProvisioningURL string
	ClientURL       string
	Token           string   // в открытом виде, после расшифровки
	AccountIDs      []string // счета, которые подтягиваются при обновлении
	Timeout         time.Duration
	Rate            float64
	Burst           float64
	MaxRetries      int
}

// Enabled возвращает true если удаленный источник настроен
func (p ProviderConfig) Enabled() bool {
	return p.Token != ""
}

// CatalogConfig - статический каталог счетов Hankox/TradeLocker/Binance
type CatalogConfig struct {
	Path string // пусто = встроенный каталог
}

// RedisConfig - кеш снимка счетов
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled возвращает true если кеш включен
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// BridgeConfig - фоновые задачи и подтверждение удаления
type BridgeConfig struct {
	RefreshInterval  time.Duration // 0 = фоновое обновление выключено
	DeleteConfirmTTL time.Duration
}

// SecurityConfig - ключ шифрования и доступ к отладочным эндпоинтам
type SecurityConfig struct {
	EncryptionKey     string
	DebugUsername     string
	DebugPasswordHash string
}

// DebugEnabled возвращает true если /metrics защищен учетными данными
func (s SecurityConfig) DebugEnabled() bool {
	return s.DebugUsername != "" && s.DebugPasswordHash != ""
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv читает конфигурацию только из переменных окружения
func FromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", nil),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradebridge"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Provider: ProviderConfig{
			ProvisioningURL: getEnv("METAAPI_PROVISIONING_URL", "https://mt-provisioning-api-v1.agiliumtrade.agiliumtrade.ai"),
			ClientURL:       getEnv("METAAPI_CLIENT_URL", "https://mt-client-api-v1.new-york.agiliumtrade.ai"),
			Token:           getEnv("METAAPI_TOKEN", ""),
			AccountIDs:      getEnvAsSlice("METAAPI_ACCOUNT_IDS", nil),
			Timeout:         getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
			Rate:            getEnvAsFloat("PROVIDER_RATE", 5),
			Burst:           getEnvAsFloat("PROVIDER_BURST", 10),
			MaxRetries:      getEnvAsInt("PROVIDER_MAX_RETRIES", 2),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("ACCOUNT_CACHE_TTL", 5*time.Minute),
		},
		Bridge: BridgeConfig{
			RefreshInterval:  getEnvAsDuration("REFRESH_INTERVAL", time.Minute),
			DeleteConfirmTTL: getEnvAsDuration("DELETE_CONFIRM_TTL", 2*time.Minute),
		},
		Security: SecurityConfig{
			EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
			DebugUsername:     getEnv("DEBUG_USERNAME", ""),
			DebugPasswordHash: getEnv("DEBUG_PASSWORD_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", "stderr"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет ключ шифрования и раскрывает токен "enc:..."
func (c *Config) validateSecurity() error {
	key := c.Security.EncryptionKey
	if key != "" && len(key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if crypto.IsSealed(c.Provider.Token) {
		if key == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required to decrypt METAAPI_TOKEN")
		}
		token, err := crypto.Open(c.Provider.Token, key)
		if err != nil {
			return fmt.Errorf("decrypt METAAPI_TOKEN: %w", err)
		}
		c.Provider.Token = token
	}

	if (c.Security.DebugUsername == "") != (c.Security.DebugPasswordHash == "") {
		return fmt.Errorf("DEBUG_USERNAME and DEBUG_PASSWORD_HASH must be set together")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны и перечисления
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Backend)
	}

	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %v", c.Provider.Timeout)
	}

	if c.Provider.Rate <= 0 {
		return fmt.Errorf("PROVIDER_RATE must be positive, got %v", c.Provider.Rate)
	}

	if c.Provider.MaxRetries < 0 || c.Provider.MaxRetries > 10 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must be between 0 and 10, got %d", c.Provider.MaxRetries)
	}

	if c.Redis.Enabled() && c.Redis.TTL <= 0 {
		return fmt.Errorf("ACCOUNT_CACHE_TTL must be positive, got %v", c.Redis.TTL)
	}

	if c.Bridge.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL cannot be negative, got %v", c.Bridge.RefreshInterval)
	}

	if c.Bridge.DeleteConfirmTTL < time.Second {
		return fmt.Errorf("DELETE_CONFIRM_TTL must be at least 1s, got %v", c.Bridge.DeleteConfirmTTL)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice читает список через запятую, пустые элементы отбрасываются
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
