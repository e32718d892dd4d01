package bot

import (
	"fmt"

	"cyclebot/internal/models"
)

// ValidTransitions определяет допустимые переходы между состояниями
// трекера исполнения циклов
var ValidTransitions = map[string][]string{
	models.StateReady:       {models.StateExecuting, models.StateHalted},
	models.StateExecuting:   {models.StateReady, models.StateReversing, models.StateHalted}, // Ready при полном исполнении
	models.StateReversing:   {models.StateCoolingDown, models.StateHalted},
	models.StateCoolingDown: {models.StateReady, models.StateHalted},
	models.StateHalted:      {}, // Только ручной перезапуск процесса
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

// StateTransitionError - ошибка недопустимого перехода состояния
type StateTransitionError struct {
	From string
	To   string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s string) string {
	switch s {
	case models.StateReady:
		return "Ожидание арбитражной возможности"
	case models.StateExecuting:
		return "Исполнение ног цикла..."
	case models.StateReversing:
		return "Разворот: размещение корректирующих ордеров..."
	case models.StateCoolingDown:
		return "Пауза после разворота"
	case models.StateHalted:
		return "Остановлено! Превышен порог провалившихся ног"
	default:
		return "Неизвестное состояние"
	}
}

// IsActive возвращает true, если трекер исполняет или разворачивает цикл
func IsActive(s string) bool {
	return s == models.StateExecuting || s == models.StateReversing
}
