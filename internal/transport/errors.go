package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors транспорта.
var (
	// ErrAborted — передача прервана через Abort или отменой контекста.
	ErrAborted = errors.New("transfer aborted")

	// ErrUnsupportedScheme — для схемы URL нет транспорта.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrBadStatus — сервер ответил не-2xx статусом.
	ErrBadStatus = errors.New("unexpected http status")
)

// StatusError — ошибка HTTP статуса.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBadStatus, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrBadStatus
}
