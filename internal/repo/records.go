package repo

import "github.com/shaiso/Downloader/internal/domain"

// Хранимый формат записи: одна строка на идентификатор.
// Тег состояния хранится строкой, прогресс — nullable колонками,
// которые заполнены только для DOWNLOADING.

// stateColumns раскладывает состояние по колонкам.
func stateColumns(s domain.State) (kind string, bytesWritten, totalBytes *int64) {
	kind = string(s.Kind)
	if kind == "" {
		kind = string(domain.StateUndefined)
	}
	if s.Kind == domain.StateDownloading {
		written, total := s.BytesWritten, s.TotalBytes
		return kind, &written, &total
	}
	return kind, nil, nil
}

// stateFromColumns собирает состояние из колонок.
func stateFromColumns(kind string, bytesWritten, totalBytes *int64) domain.State {
	state := domain.NewState(domain.ParseStateKind(kind))
	if state.Kind != domain.StateDownloading {
		return state
	}
	if bytesWritten != nil {
		state.BytesWritten = *bytesWritten
	}
	if totalBytes != nil {
		state.TotalBytes = *totalBytes
	}
	return state
}

// cancellableKinds — состояния, которые затрагивает MarkAllNonTerminalCancelled.
var cancellableKinds = []string{
	string(domain.StateEnqueued),
	string(domain.StateDownloading),
}
