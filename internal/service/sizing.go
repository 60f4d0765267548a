package service

import (
	"math"
	"strings"

	"tradebridge/internal/models"
	"tradebridge/pkg/utils"
)

// Параметры округления по умолчанию
const (
	DefaultLotStep = 0.01
	DefaultMaxLots = 100.0
)

// SizingRequest - запрос расчета объема копируемой сделки.
// Если указан MappingID, настройки берутся из связки.
type SizingRequest struct {
	MappingID       string  `json:"mapping_id"`
	SourceAccountID string  `json:"source_account_id"`
	TargetAccountID string  `json:"target_account_id"`
	PositionSizing  string  `json:"position_sizing"`
	PositionValue   float64 `json:"position_value"`
	SourceVolume    float64 `json:"source_volume"`
	LotStep         float64 `json:"lot_step"`
	MaxLots         float64 `json:"max_lots"`
}

// SizingResult - результат расчета
type SizingResult struct {
	PositionSizing string  `json:"position_sizing"`
	PositionValue  float64 `json:"position_value"`
	SourceVolume   float64 `json:"source_volume"`
	RawVolume      float64 `json:"raw_volume"`
	TargetVolume   float64 `json:"target_volume"`
	SourceEquity   float64 `json:"source_equity,omitempty"`
	TargetEquity   float64 `json:"target_equity,omitempty"`
	Clamped        bool    `json:"clamped"`
}

// SizingCalculator считает объем сделки на целевом счете
type SizingCalculator struct {
	mappings *MappingService
	accounts AccountLookup
}

// NewSizingCalculator создает калькулятор
func NewSizingCalculator(mappings *MappingService, accounts AccountLookup) *SizingCalculator {
	return &SizingCalculator{mappings: mappings, accounts: accounts}
}

// Preview рассчитывает объем:
//   - fixed: position_value лотов
//   - percentage: source_volume * position_value / 100
//   - risk-based: source_volume * (target_equity / source_equity) * position_value / 100
//
// Результат округляется вниз до lot_step и ограничивается [0, max_lots].
func (c *SizingCalculator) Preview(req *SizingRequest) (*SizingResult, error) {
	if req == nil {
		return nil, fieldError("source_volume", utils.ErrEmptyValue.Error())
	}
	r := *req

	// 1. Настройки из связки
	if id := strings.TrimSpace(r.MappingID); id != "" {
		m, err := c.mappings.Get(id)
		if err != nil {
			return nil, err
		}
		r.SourceAccountID = m.SourceAccountID
		r.TargetAccountID = m.TargetAccountID
		r.PositionSizing = m.PositionSizing
		r.PositionValue = m.PositionValue
	}
	r.PositionSizing = utils.NormalizeEnum(r.PositionSizing)

	if r.LotStep == 0 {
		r.LotStep = DefaultLotStep
	}
	if r.MaxLots == 0 {
		r.MaxLots = DefaultMaxLots
	}

	// 2. Валидация
	var errs utils.ValidationErrors
	if !finite(r.SourceVolume) || r.SourceVolume < 0 {
		errs.Add("source_volume", "must be a non-negative number")
	}
	if !finite(r.LotStep) || r.LotStep < 0 {
		errs.Add("lot_step", "must be a positive number")
	}
	if !finite(r.MaxLots) || r.MaxLots < 0 {
		errs.Add("max_lots", "must be a positive number")
	}
	if min, max, ok := models.PositionValueRange(r.PositionSizing); !ok {
		errs.AddError("position_sizing", utils.ValidateOneOf(r.PositionSizing, models.Sizings...))
	} else if !finite(r.PositionValue) {
		errs.Add("position_value", "must be a finite number")
	} else {
		errs.AddError("position_value", utils.ValidateRange(r.PositionValue, min, max))
	}
	if errs.HasErrors() {
		return nil, newValidationError(errs)
	}

	res := &SizingResult{
		PositionSizing: r.PositionSizing,
		PositionValue:  r.PositionValue,
		SourceVolume:   r.SourceVolume,
	}

	// 3. Расчет
	switch r.PositionSizing {
	case models.SizingFixed:
		res.RawVolume = r.PositionValue
	case models.SizingPercentage:
		res.RawVolume = r.SourceVolume * r.PositionValue / 100
	case models.SizingRiskBased:
		source, target, err := c.equities(r.SourceAccountID, r.TargetAccountID)
		if err != nil {
			return nil, err
		}
		ratio, ok := utils.SafeRatio(target.Equity, source.Equity)
		if !ok {
			return nil, fieldError("source_account_id", "source account equity must be positive for risk-based sizing")
		}
		res.SourceEquity = source.Equity
		res.TargetEquity = target.Equity
		res.RawVolume = r.SourceVolume * ratio * r.PositionValue / 100
	}

	// 4. Округление и ограничение
	volume := utils.RoundToLotSize(res.RawVolume, r.LotStep)
	res.TargetVolume = utils.Clamp(volume, 0, r.MaxLots)
	res.Clamped = res.TargetVolume != volume
	return res, nil
}

func (c *SizingCalculator) equities(sourceID, targetID string) (*models.Account, *models.Account, error) {
	var errs utils.ValidationErrors
	source, ok := c.accounts.FindAccount(strings.TrimSpace(sourceID))
	if !ok {
		errs.Add("source_account_id", "account not found")
	}
	target, ok := c.accounts.FindAccount(strings.TrimSpace(targetID))
	if !ok {
		errs.Add("target_account_id", "account not found")
	}
	if errs.HasErrors() {
		return nil, nil, newValidationError(errs)
	}
	return source, target, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
