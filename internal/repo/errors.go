package repo

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — переход состояния запрещён машиной состояний.
	ErrInvalidState = errors.New("invalid state")
)
