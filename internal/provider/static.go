package provider

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradebridge/internal/models"
	"tradebridge/pkg/utils"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Catalog - статический список счетов платформ без удаленного API
type Catalog struct {
	Accounts []models.Account `yaml:"accounts"`
}

// LoadCatalog читает каталог из файла или, при пустом path, встроенный
func LoadCatalog(path string) (*Catalog, error) {
	data := embeddedCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog разбирает YAML и проверяет записи
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if err := utils.ValidateID(a.ID); err != nil {
			return fmt.Errorf("catalog account #%d: id: %w", i, err)
		}
		if seen[a.ID] {
			return fmt.Errorf("catalog account %s: duplicate id", a.ID)
		}
		seen[a.ID] = true

		if !models.IsValidPlatform(a.Platform) || models.IsMetaTrader(a.Platform) {
			return fmt.Errorf("catalog account %s: platform %q is not a static platform", a.ID, a.Platform)
		}
		if a.Balance < 0 || a.Equity < 0 {
			return fmt.Errorf("catalog account %s: balance and equity must be non-negative", a.ID)
		}
		if err := utils.ValidateOneOf(a.AccountClass, models.AccountClassDemo, models.AccountClassLive); err != nil {
			return fmt.Errorf("catalog account %s: account_class: %w", a.ID, err)
		}
		if err := utils.ValidateOneOf(a.ConnectionStatus,
			models.ConnectionConnected, models.ConnectionConnecting, models.ConnectionDisconnected); err != nil {
			return fmt.Errorf("catalog account %s: connection_status: %w", a.ID, err)
		}
	}
	return nil
}

// ForPlatform возвращает счета платформы в порядке объявления
func (c *Catalog) ForPlatform(platform string) []models.Account {
	var out []models.Account
	for _, a := range c.Accounts {
		if a.Platform == platform {
			out = append(out, a)
		}
	}
	return out
}

// StaticSource отдает счета одной платформы из каталога
type StaticSource struct {
	platform string
	accounts []models.Account
}

// NewStaticSource создает источник для платформы
func NewStaticSource(platform string, accounts []models.Account) *StaticSource {
	return &StaticSource{platform: platform, accounts: accounts}
}

// Name возвращает имя платформы
func (s *StaticSource) Name() string {
	return s.platform
}

// FetchAccounts возвращает копии счетов, чтобы вызывающий не испортил каталог
func (s *StaticSource) FetchAccounts(ctx context.Context) ([]*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.Account, 0, len(s.accounts))
	for i := range s.accounts {
		a := s.accounts[i]
		out = append(out, &a)
	}
	return out, nil
}
