package websocket

import (
	"time"

	"tradebridge/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeMappingUpdate - связка создана или изменена
	// (toggle, отметка синхронизации, сверка со счетами)
	MessageTypeMappingUpdate MessageType = "mappingUpdate"

	// MessageTypeMappingDeleted - связка удалена
	MessageTypeMappingDeleted MessageType = "mappingDeleted"

	// MessageTypeAccountsUpdate - новый снимок счетов
	MessageTypeAccountsUpdate MessageType = "accountsUpdate"

	// MessageTypeAccountsError - источник счетов не ответил при обновлении
	MessageTypeAccountsError MessageType = "accountsError"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC()}
}

// MappingUpdateMessage - актуальное состояние связки
type MappingUpdateMessage struct {
	BaseMessage
	MappingID string                `json:"mapping_id"`
	Data      *models.BridgeMapping `json:"data"`
}

// MappingDeletedMessage - связка удалена
type MappingDeletedMessage struct {
	BaseMessage
	MappingID string `json:"mapping_id"`
}

// AccountsUpdateMessage - полный список счетов после обновления.
// Cached = true, если список взят из кеша до первого живого обновления.
type AccountsUpdateMessage struct {
	BaseMessage
	Accounts  []*models.Account `json:"accounts"`
	FetchedAt time.Time         `json:"fetched_at"`
	Cached    bool              `json:"cached"`
}

// AccountsErrorMessage - сбой одного источника счетов
type AccountsErrorMessage struct {
	BaseMessage
	Source  string `json:"source"`
	Message string `json:"message"`
}

// NewMappingUpdateMessage создает сообщение об изменении связки
func NewMappingUpdateMessage(m *models.BridgeMapping) *MappingUpdateMessage {
	return &MappingUpdateMessage{
		BaseMessage: newBase(MessageTypeMappingUpdate),
		MappingID:   m.ID,
		Data:        m,
	}
}

// NewMappingDeletedMessage создает сообщение об удалении связки
func NewMappingDeletedMessage(id string) *MappingDeletedMessage {
	return &MappingDeletedMessage{
		BaseMessage: newBase(MessageTypeMappingDeleted),
		MappingID:   id,
	}
}

// NewAccountsUpdateMessage создает сообщение со снимком счетов
func NewAccountsUpdateMessage(accounts []*models.Account, fetchedAt time.Time, cached bool) *AccountsUpdateMessage {
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return &AccountsUpdateMessage{
		BaseMessage: newBase(MessageTypeAccountsUpdate),
		Accounts:    accounts,
		FetchedAt:   fetchedAt,
		Cached:      cached,
	}
}

// NewAccountsErrorMessage создает сообщение о сбое источника
func NewAccountsErrorMessage(source, message string) *AccountsErrorMessage {
	return &AccountsErrorMessage{
		BaseMessage: newBase(MessageTypeAccountsError),
		Source:      source,
		Message:     message,
	}
}
