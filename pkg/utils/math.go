package utils

import (
	"math"
)

// math.go - математические утилиты для расчета объема копируемых сделок
//
// Все функции чистые, без побочных эффектов.

// lotEpsilon гасит ошибку представления float64 (0.3/0.01 = 29.999999999999996)
const lotEpsilon = 1e-9

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что целевой объем не превысит расчетный.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
//   - RoundToLotSize(0.3, 0.01) = 0.3
//
// Если lotSize <= 0, возвращает исходное значение.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	steps := math.Floor(value/lotSize + lotEpsilon)
	return roundDecimals(steps*lotSize, lotDecimals(lotSize))
}

// lotDecimals возвращает число знаков после запятой у шага лота (0.01 -> 2)
func lotDecimals(lotSize float64) int {
	d := 0
	for d < 10 && math.Abs(lotSize-math.Round(lotSize)) > lotEpsilon {
		lotSize *= 10
		d++
	}
	return d
}

func roundDecimals(value float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(value*p) / p
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// SafeRatio возвращает a/b, или 0 и false если b не положительно.
func SafeRatio(a, b float64) (float64, bool) {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0, false
	}
	return a / b, true
}
