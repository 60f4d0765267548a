// Package bridge содержит правила жизненного цикла связок счетов,
// метрики и фоновое обновление счетов.
package bridge

import "tradebridge/internal/models"

// StatusDeleted - терминальное состояние, в хранилище не сохраняется
const StatusDeleted = "deleted"

// ValidTransitions определяет допустимые переходы между статусами связки
var ValidTransitions = map[string][]string{
	models.MappingStatusActive:   {models.MappingStatusInactive, models.MappingStatusError, StatusDeleted},
	models.MappingStatusInactive: {models.MappingStatusActive, models.MappingStatusError, StatusDeleted},
	models.MappingStatusError:    {models.MappingStatusInactive, StatusDeleted}, // только система, когда счета вернулись
}

// userTransitions - переходы, доступные пользователю через toggle
var userTransitions = map[string]string{
	models.MappingStatusActive:   models.MappingStatusInactive,
	models.MappingStatusInactive: models.MappingStatusActive,
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ToggleTarget возвращает статус после пользовательского переключения.
// Для error и неизвестных статусов ok = false.
func ToggleTarget(from string) (to string, ok bool) {
	to, ok = userTransitions[from]
	return to, ok
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.MappingStatusActive:
		return "Связка активна, сделки копируются"
	case models.MappingStatusInactive:
		return "Связка приостановлена"
	case models.MappingStatusError:
		return "Ошибка! Один из счетов недоступен"
	default:
		return "Неизвестный статус"
	}
}
