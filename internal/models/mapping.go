package models

import "time"

// BridgeMapping связывает счет-источник и целевой счет
type BridgeMapping struct {
	ID              string     `json:"id" db:"id"`
	SourceAccountID string     `json:"source_account_id" db:"source_account_id"`
	TargetAccountID string     `json:"target_account_id" db:"target_account_id"`
	Name            string     `json:"name" db:"name"`
	Status          string     `json:"status" db:"status"`                   // active, inactive, error
	SyncMode        string     `json:"sync_mode" db:"sync_mode"`             // one-way, two-way
	PositionSizing  string     `json:"position_sizing" db:"position_sizing"` // fixed, percentage, risk-based
	PositionValue   float64    `json:"position_value" db:"position_value"`   // лоты для fixed, проценты иначе
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	LastSyncAt      *time.Time `json:"last_sync_at" db:"last_sync_at"`
	Error           *string    `json:"error" db:"error"`
}

// Статусы связки
const (
	MappingStatusActive   = "active"
	MappingStatusInactive = "inactive"
	MappingStatusError    = "error"
)

// Режимы синхронизации
const (
	SyncModeOneWay = "one-way"
	SyncModeTwoWay = "two-way"
)

// SyncModes - допустимые режимы синхронизации
var SyncModes = []string{SyncModeOneWay, SyncModeTwoWay}

// Стратегии расчета объема
const (
	SizingFixed      = "fixed"
	SizingPercentage = "percentage"
	SizingRiskBased  = "risk-based"
)

// Sizings - допустимые стратегии расчета объема
var Sizings = []string{SizingFixed, SizingPercentage, SizingRiskBased}

// Диапазоны position_value по стратегиям
const (
	MinFixedLots = 0.01
	MaxFixedLots = 10.0
	MinPercent   = 1.0
	MaxPercent   = 100.0
)

// MappingInput - данные формы создания связки
type MappingInput struct {
	SourceAccountID string  `json:"source_account_id"`
	TargetAccountID string  `json:"target_account_id"`
	Name            string  `json:"name"`
	SyncMode        string  `json:"sync_mode"`
	PositionSizing  string  `json:"position_sizing"`
	PositionValue   float64 `json:"position_value"`
}

// Clone возвращает глубокую копию связки.
// Хранилище отдает только копии, чтобы вызывающий код не менял состояние в обход операций.
func (m *BridgeMapping) Clone() *BridgeMapping {
	if m == nil {
		return nil
	}
	c := *m
	if m.LastSyncAt != nil {
		t := *m.LastSyncAt
		c.LastSyncAt = &t
	}
	if m.Error != nil {
		e := *m.Error
		c.Error = &e
	}
	return &c
}

// PositionValueRange возвращает допустимый диапазон position_value для стратегии
func PositionValueRange(sizing string) (min, max float64, ok bool) {
	switch sizing {
	case SizingFixed:
		return MinFixedLots, MaxFixedLots, true
	case SizingPercentage, SizingRiskBased:
		return MinPercent, MaxPercent, true
	default:
		return 0, 0, false
	}
}
