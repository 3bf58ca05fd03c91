package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidRequest — запрос на загрузку заполнен некорректно.
var ErrInvalidRequest = errors.New("invalid request")

// Request — описание одной загрузки, которое передаёт вызывающая сторона.
// После создания не меняется.
type Request struct {
	// ID — уникальный ключ задачи.
	ID string `json:"id"`

	// URL — источник (http, https, s3, file, mem...).
	URL string `json:"url"`

	// Destination — путь к файлу назначения.
	Destination string `json:"destination"`
}

// Validate проверяет обязательные поля запроса.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: parse url: %v", ErrInvalidRequest, err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Path == "") {
		return fmt.Errorf("%w: url must be absolute", ErrInvalidRequest)
	}

	if strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	return nil
}
