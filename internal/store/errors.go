package store

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция невозможна в текущем состоянии записи.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoWork — нет юнитов, подходящих воркеру. Не ошибка по сути:
	// воркер получает пустой ответ и backoff-подсказку.
	ErrNoWork = errors.New("no work available")

	// ErrAssignmentMismatch — отчёт о результате пришёл от воркера,
	// который не является текущим назначенцем юнита (устаревший или
	// повторный отчёт). Отчёт отбрасывается без изменений состояния.
	ErrAssignmentMismatch = errors.New("assignment mismatch")
)
