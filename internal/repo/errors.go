package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNotClaimed — задачу не удалось получить в работу:
	// она не в PENDING или уже захвачена другим воркером.
	ErrNotClaimed = errors.New("task not claimed")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)
