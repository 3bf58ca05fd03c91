package downloader

import (
	"errors"
	"fmt"

	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/repo"
)

// Ошибки загрузчика.
var (
	// ErrNotFound — задача с таким id не найдена.
	ErrNotFound = repo.ErrNotFound

	// ErrInvalidState — переход состояния запрещён.
	ErrInvalidState = repo.ErrInvalidState

	// ErrInvalidRequest — некорректный запрос на загрузку.
	ErrInvalidRequest = domain.ErrInvalidRequest

	// ErrStopped — загрузчик остановлен.
	ErrStopped = errors.New("downloader stopped")

	// ErrNotStarted — загрузчик ещё не запущен.
	ErrNotStarted = errors.New("downloader not started")

	// ErrInternal — внутренний сбой pipeline.
	ErrInternal = errors.New("internal pipeline error")
)

// StoreError — ошибка хранилища.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// TransportError — ошибка передачи данных.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FileError — ошибка удаления файла.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("delete files: %v", e.Err)
	}
	return fmt.Sprintf("delete file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// storeErr оборачивает ошибку хранилища. ErrNotFound и ErrInvalidState
// остаются доступны через errors.Is.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// isRefusal — запись отвергнута: задача отменена или удалена извне.
func isRefusal(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound)
}
