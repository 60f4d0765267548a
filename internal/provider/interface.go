// Package provider получает торговые счета из внешних источников
// и приводит их к единой модели models.Account.
package provider

import (
	"context"
	"errors"
	"fmt"

	"tradebridge/internal/models"
)

// Source - источник счетов одной платформы или одного провайдера
type Source interface {
	// Name возвращает имя источника для логов, метрик и FetchError
	Name() string

	// FetchAccounts возвращает счета источника в стабильном порядке.
	// При частичном сбое возвращает полученные счета вместе с ошибкой.
	FetchAccounts(ctx context.Context) ([]*models.Account, error)
}

// AccountCreator - источник, умеющий подключать новые счета
type AccountCreator interface {
	// Platforms возвращает платформы, для которых доступно создание
	Platforms() []string

	// CreateAccount регистрирует счет у провайдера и возвращает его в нормализованном виде
	CreateAccount(ctx context.Context, req *models.NewAccountRequest) (*models.Account, error)
}

// Closer освобождает соединения источника
type Closer interface {
	Close() error
}

var (
	ErrAccountNotFound = errors.New("account not found at provider")
	ErrUnauthorized    = errors.New("provider rejected credentials")
	ErrRateLimited     = errors.New("provider rate limit exceeded")

	ErrUnsupportedPlatform = errors.New("provider returned unsupported platform")
)

// ProviderError - ошибка ответа провайдера
type ProviderError struct {
	Source   string
	Status   int
	Code     string
	Message  string
	Original error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%d %s)", e.Source, e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Source, e.Message, e.Status)
}

// Unwrap возвращает исходную ошибку для errors.Is/As
func (e *ProviderError) Unwrap() error {
	return e.Original
}

// Retryable: повторяем 429 и 5xx, остальные коды клиента окончательные
func (e *ProviderError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}
