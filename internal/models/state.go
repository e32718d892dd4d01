package models

// Состояния трекера исполнения арбитражных циклов
//
// READY        - ожидание следующей возможности
// EXECUTING    - ноги цикла размещены, ждём исполнения
// REVERSING    - нога провалилась, размещаются корректирующие ордера
// COOLING_DOWN - пауза после разворота перед возвратом в READY
// HALTED       - kill switch: превышен порог провалившихся ног
const (
	StateReady       = "READY"
	StateExecuting   = "EXECUTING"
	StateReversing   = "REVERSING"
	StateCoolingDown = "COOLING_DOWN"
	StateHalted      = "HALTED"
)
