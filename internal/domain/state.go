package domain

import (
	"fmt"
	"strings"
)

// StateKind — тег состояния задачи загрузки.
//
// Жизненный цикл:
//
//	UNDEFINED → ENQUEUED → DOWNLOADING → COMPLETED
//	                                   ↘ FAILED
//	          (или) → CANCELLED (из ENQUEUED или DOWNLOADING)
//	CANCELLED → ENQUEUED (повторная постановка в очередь)
type StateKind string

const (
	// StateUndefined — состояние неизвестно (запись сброшена).
	StateUndefined StateKind = "UNDEFINED"

	// StateEnqueued — задача в очереди, ожидает свободного слота.
	StateEnqueued StateKind = "ENQUEUED"

	// StateDownloading — идёт передача данных.
	StateDownloading StateKind = "DOWNLOADING"

	// StateCompleted — файл загружен.
	StateCompleted StateKind = "COMPLETED"

	// StateFailed — загрузка завершилась ошибкой.
	StateFailed StateKind = "FAILED"

	// StateCancelled — задача отменена пользователем.
	StateCancelled StateKind = "CANCELLED"
)

// ParseStateKind парсит строку в StateKind.
// Неизвестные значения превращаются в StateUndefined.
func ParseStateKind(s string) StateKind {
	switch StateKind(s) {
	case StateEnqueued, StateDownloading, StateCompleted, StateFailed, StateCancelled:
		return StateKind(s)
	default:
		return StateUndefined
	}
}

// State — состояние задачи. BytesWritten и TotalBytes имеют смысл
// только для StateDownloading.
type State struct {
	Kind         StateKind `json:"kind"`
	BytesWritten int64     `json:"bytes_written,omitempty"`
	TotalBytes   int64     `json:"total_bytes,omitempty"`
}

// NewState создаёт состояние без прогресса.
func NewState(kind StateKind) State {
	return State{Kind: kind}
}

// Downloading создаёт состояние DOWNLOADING с прогрессом.
func Downloading(bytesWritten, totalBytes int64) State {
	return State{
		Kind:         StateDownloading,
		BytesWritten: bytesWritten,
		TotalBytes:   totalBytes,
	}
}

// Percentage возвращает процент загрузки (0..100, с округлением вниз).
// При неизвестном размере возвращает 0.
func (s State) Percentage() int {
	if s.Kind != StateDownloading || s.TotalBytes <= 0 || s.BytesWritten <= 0 {
		return 0
	}
	return int(s.BytesWritten * 100 / s.TotalBytes)
}

// IsTerminal возвращает true, если состояние финальное.
func (s State) IsTerminal() bool {
	switch s.Kind {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// CanCancel — задачу ещё имеет смысл отменять.
func (s State) CanCancel() bool {
	return s.Kind == StateEnqueued || s.Kind == StateDownloading
}

// CanDownload — задачу можно запускать.
func (s State) CanDownload() bool {
	return s.Kind != StateCancelled
}

// String возвращает человекочитаемое представление.
func (s State) String() string {
	switch s.Kind {
	case StateDownloading:
		return fmt.Sprintf("downloading: %d%% bytes_written=%d, total_bytes=%d",
			s.Percentage(), s.BytesWritten, s.TotalBytes)
	case "":
		return "undefined"
	default:
		return strings.ToLower(string(s.Kind))
	}
}

// Progress — сырое событие прогресса от транспорта.
type Progress struct {
	BytesWritten int64 `json:"bytes_written"`
	TotalBytes   int64 `json:"total_bytes"`
}

// State превращает прогресс в состояние DOWNLOADING.
func (p Progress) State() State {
	return Downloading(p.BytesWritten, p.TotalBytes)
}
