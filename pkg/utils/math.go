package utils

import (
	"math"
)

// math.go - математические утилиты для циклического арбитража
//
// Назначение:
// Вспомогательные математические функции для торговых операций.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - RoundToLotSize: квантование объёма до lot size биржи
// - QuantizeOrderAmount: квантование с проверкой минимального объёма
// - CalculateSpread: расчет спреда между ценами
// - CalculateCycleReturn: доходность замкнутого цикла конверсий
// - CalculateWeightedAverage: средневзвешенная цена (VWAP)

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для квантования объёма ордера до минимального шага биржи.
// Округление вниз гарантирует, что мы не превысим доступные средства.
//
// Параметры:
//   - value: исходное значение (объём в монетах актива)
//   - lotSize: минимальный шаг изменения объёма на бирже
//
// Возвращает:
//   - Округлённое значение, кратное lotSize
//   - Если lotSize <= 0, возвращает исходное значение
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	// math.Floor для округления вниз - не превысим доступные средства
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
//
// Используется когда нужно гарантировать минимальный объём (например, для minQty).
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// RoundToLotSizeNearest округляет к ближайшему кратному lotSize.
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Round(value/lotSize) * lotSize
}

// QuantizeOrderAmount квантует объём ноги до правил биржи.
//
// Сначала округляет вниз до lotSize, затем проверяет минимальный объём.
// Результат 0 означает, что ногу разместить нельзя - вызывающий обязан
// отбросить ВЕСЬ цикл, а не одну ногу: частично размещённый цикл оставляет
// открытую позицию.
//
// Параметры:
//   - amount: желаемый объём ноги
//   - lotSize: минимальный шаг объёма
//   - minQty: минимальный допустимый объём ордера (0 = не задан)
//
// Возвращает:
//   - Квантованный объём, либо 0 если объём ниже минимума
func QuantizeOrderAmount(amount, lotSize, minQty float64) float64 {
	q := RoundToLotSize(amount, lotSize)
	if q <= 0 {
		return 0
	}
	if minQty > 0 && q < minQty {
		return 0
	}
	return q
}

// CalculateSpread расчитывает спред между двумя ценами в процентах.
//
// Формула:
//
//	Спред (%) = ((P_высокая - P_низкая) / P_низкая) × 100
//
// Возвращает:
//   - Спред в процентах (например, 1.5 означает 1.5%)
//   - Если priceLow <= 0, возвращает 0
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateCycleReturn расчитывает доходность замкнутого цикла конверсий.
//
// Каждая нога цикла конвертирует актив по курсу rate_i и платит комиссию
// fee_i (в долях, 0.001 = 0.1%). Начав с одной единицы стартового актива,
// после всех ног получаем product(rate_i × (1 - fee_i)) единиц.
//
// Формула:
//
//	Доходность (%) = (Π rate_i × (1 - fee_i) - 1) × 100
//
// Параметры:
//   - rates: курсы конверсии каждой ноги (для покупки 1/price, для продажи price)
//   - fees: комиссии тейкера каждой ноги в долях
//
// Возвращает:
//   - Доходность цикла в процентах; положительная = прибыльный цикл
//   - 0 при некорректных входных данных
func CalculateCycleReturn(rates, fees []float64) float64 {
	if len(rates) == 0 || len(rates) != len(fees) {
		return 0
	}
	product := 1.0
	for i, r := range rates {
		if r <= 0 {
			return 0
		}
		product *= r * (1 - fees[i])
	}
	return (product - 1) * 100
}

// CalculateWeightedAverage вычисляет средневзвешенное значение (VWAP).
//
// Используется для расчёта средневзвешенной цены по стакану ордеров.
//
// Формула:
//
//	VWAP = Σ(price_i × volume_i) / Σ(volume_i)
//
// Возвращает:
//   - Средневзвешенное значение
//   - 0 если входные данные некорректны
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}

	var sumWeighted, sumWeights float64
	for i := range values {
		if weights[i] < 0 {
			continue // Пропускаем отрицательные веса
		}
		sumWeighted += values[i] * weights[i]
		sumWeights += weights[i]
	}

	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
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
