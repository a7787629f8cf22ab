package weaver

import "errors"

// Ошибки воркера.
var (
	// ErrNotRegistered — оркестратор не знает этого воркера: регистрация
	// истекла (purge за молчание) или это первый запуск. Лечится
	// повторной регистрацией.
	ErrNotRegistered = errors.New("weaver is not registered")

	// ErrAssignmentMismatch — отчёт о результате отклонён: юнит уже
	// переназначен другому воркеру. Отчёт сбрасывается без повтора.
	ErrAssignmentMismatch = errors.New("assignment mismatch")

	// ErrUnknownTaskType — нет executor'а для данного типа задачи.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrBadStatus — сервер ответил неожиданным HTTP статусом.
	ErrBadStatus = errors.New("unexpected response status")

	// ErrModelService — модельный сервис ответил ошибкой.
	ErrModelService = errors.New("model service error")
)
