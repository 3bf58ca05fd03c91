package domain

import "errors"

// ResultKind — итог выполнения задачи.
type ResultKind string

const (
	ResultSuccess   ResultKind = "SUCCESS"
	ResultCancelled ResultKind = "CANCELLED"
	ResultFailure   ResultKind = "FAILURE"
)

// Result — финальный результат одной попытки загрузки.
// Для каждой запущенной попытки публикуется ровно один Result.
type Result struct {
	Kind    ResultKind
	Request Request

	// Err заполнен только для ResultFailure.
	Err error
}

// Succeeded создаёт успешный результат.
func Succeeded(req Request) Result {
	return Result{Kind: ResultSuccess, Request: req}
}

// Cancelled создаёт результат отмены.
func Cancelled(req Request) Result {
	return Result{Kind: ResultCancelled, Request: req}
}

// Failed создаёт результат с ошибкой.
func Failed(req Request, err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Result{Kind: ResultFailure, Request: req, Err: err}
}

// ErrMessage возвращает текст ошибки или пустую строку.
func (r Result) ErrMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
