package models

import "time"

// Notification представляет уведомление о торговом событии
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // CYCLE_OPEN, CYCLE_COMPLETE, LEG_FAIL, ...
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Market    string                 `json:"market,omitempty" db:"market"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeCycleOpen     = "CYCLE_OPEN"     // начато исполнение цикла
	NotificationTypeCycleComplete = "CYCLE_COMPLETE" // все ноги исполнены
	NotificationTypeCycleAbort    = "CYCLE_ABORT"    // цикл отброшен до размещения ордеров
	NotificationTypeLegFail       = "LEG_FAIL"       // нога провалилась, начат разворот
	NotificationTypeReversal      = "REVERSAL"       // размещён корректирующий ордер
	NotificationTypeAllIn         = "ALL_IN"         // нога разворота пересчитана на весь доступный баланс
	NotificationTypeInsufficient  = "INSUFFICIENT"   // недостаточно средств для ноги
	NotificationTypeKillSwitch    = "KILL_SWITCH"    // превышен порог провалившихся ног, стратегия остановлена
	NotificationTypeError         = "ERROR"          // ошибка API/ордера
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
