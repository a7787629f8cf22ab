package orchestrator

import "errors"

// Ошибки оркестратора.
//
// Ошибки store (ErrNotFound, ErrNoWork, ErrAssignmentMismatch)
// пробрасываются как есть — транспорт маппит и те и другие.
var (
	// ErrUnknownTaskType — тип задачи не зарегистрирован.
	ErrUnknownTaskType = errors.New("unknown task type")
)
