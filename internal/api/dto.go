package api

import (
	"time"

	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/downloader"
)

// EnqueueRequest — запрос на постановку загрузки в очередь.
// Пустой ID заменяется сгенерированным KSUID.
type EnqueueRequest struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url"`
	Destination string `json:"destination"`
}

// ToDomain конвертирует запрос в domain.Request.
func (r EnqueueRequest) ToDomain() domain.Request {
	return domain.Request{
		ID:          r.ID,
		URL:         r.URL,
		Destination: r.Destination,
	}
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Destination string       `json:"destination"`
	State       domain.State `json:"state"`
	Percentage  int          `json:"percentage"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		URL:         t.URL,
		Destination: t.Destination,
		State:       t.State,
		Percentage:  t.State.Percentage(),
		UpdatedAt:   t.UpdatedAt,
	}
}

// TasksFromDomain конвертирует список задач.
func TasksFromDomain(tasks []domain.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}
	return result
}

// TaskMapFromDomain конвертирует снимок ObserveMany.
func TaskMapFromDomain(tasks map[string]domain.Task) map[string]TaskResponse {
	result := make(map[string]TaskResponse, len(tasks))
	for id, t := range tasks {
		result[id] = TaskFromDomain(t)
	}
	return result
}

// ResultResponse — финальный результат загрузки.
type ResultResponse struct {
	Kind    domain.ResultKind `json:"kind"`
	Request domain.Request    `json:"request"`
	Error   string            `json:"error,omitempty"`
}

// ResultFromDomain конвертирует domain.Result в ResultResponse.
func ResultFromDomain(r domain.Result) ResultResponse {
	return ResultResponse{
		Kind:    r.Kind,
		Request: r.Request,
		Error:   r.ErrMessage(),
	}
}

// StatsResponse — загрузка планировщика.
type StatsResponse struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
	Limit   int `json:"limit"`
}

// StatsFromDomain конвертирует downloader.Stats.
func StatsFromDomain(s downloader.Stats) StatsResponse {
	return StatsResponse{
		Running: s.Running,
		Queued:  s.Queued,
		Limit:   s.Limit,
	}
}
