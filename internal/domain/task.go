package domain

import "time"

// Task — сохранённая запись о задаче загрузки.
//
// Одна запись на идентификатор. Создаётся при первой постановке в очередь,
// меняется на каждом переходе состояния, удаляется при remove.
type Task struct {
	// ID — первичный ключ записи, совпадает с Request.ID.
	ID string `json:"id"`

	// URL — источник загрузки.
	URL string `json:"url"`

	// Destination — путь к файлу назначения.
	Destination string `json:"destination"`

	// State — текущее состояние.
	State State `json:"state"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// Request восстанавливает исходный запрос.
func (t Task) Request() Request {
	return Request{
		ID:          t.ID,
		URL:         t.URL,
		Destination: t.Destination,
	}
}

// SameAs сравнивает записи без учёта UpdatedAt.
func (t Task) SameAs(other Task) bool {
	return t.ID == other.ID &&
		t.URL == other.URL &&
		t.Destination == other.Destination &&
		t.State == other.State
}
