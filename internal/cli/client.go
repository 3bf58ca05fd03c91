package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StateResponse — состояние задачи.
type StateResponse struct {
	Kind         string `json:"kind" yaml:"kind"`
	BytesWritten int64  `json:"bytes_written,omitempty" yaml:"bytes_written,omitempty"`
	TotalBytes   int64  `json:"total_bytes,omitempty" yaml:"total_bytes,omitempty"`
}

// IsTerminal — COMPLETED, FAILED или CANCELLED.
func (s StateResponse) IsTerminal() bool {
	switch s.Kind {
	case "COMPLETED", "FAILED", "CANCELLED":
		return true
	default:
		return false
	}
}

// TaskResponse — задача из API.
type TaskResponse struct {
	ID          string        `json:"id" yaml:"id"`
	URL         string        `json:"url" yaml:"url"`
	Destination string        `json:"destination" yaml:"destination"`
	State       StateResponse `json:"state" yaml:"state"`
	Percentage  int           `json:"percentage" yaml:"percentage"`
	UpdatedAt   string        `json:"updated_at" yaml:"updated_at"`
}

// ResultResponse — финальный результат загрузки.
type ResultResponse struct {
	Kind    string `json:"kind" yaml:"kind"`
	Request struct {
		ID          string `json:"id" yaml:"id"`
		URL         string `json:"url" yaml:"url"`
		Destination string `json:"destination" yaml:"destination"`
	} `json:"request" yaml:"request"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// StatsResponse — загрузка планировщика.
type StatsResponse struct {
	Running int `json:"running" yaml:"running"`
	Queued  int `json:"queued" yaml:"queued"`
	Limit   int `json:"limit" yaml:"limit"`
}

// --- Request types ---

// EnqueueRequest — постановка загрузки в очередь.
type EnqueueRequest struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url"`
	Destination string `json:"destination"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ответ API с ошибкой.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errStopStream останавливает чтение SSE потока без ошибки.
var errStopStream = errors.New("stop stream")

// --- Client ---

// Client — HTTP-клиент для API загрузчика.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Без общего таймаута: SSE потоки живут, пока их не отменят.
		streamClient: &http.Client{},
	}
}

// --- Downloads ---

// Enqueue ставит загрузку в очередь.
func (c *Client) Enqueue(req EnqueueRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/downloads", req, &task)
	return &task, err
}

// ListDownloads возвращает все задачи или только ids.
func (c *Client) ListDownloads(ids []string) ([]TaskResponse, error) {
	params := url.Values{}
	if len(ids) > 0 {
		params.Set("ids", strings.Join(ids, ","))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/downloads", params, &tasks)
	return tasks, err
}

// GetDownload возвращает задачу по ID.
func (c *Client) GetDownload(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/downloads/"+url.PathEscape(id), &task)
	return &task, err
}

// Cancel отменяет задачу.
func (c *Client) Cancel(id string) error {
	return c.post("/api/v1/downloads/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// CancelAll отменяет все задачи.
func (c *Client) CancelAll() error {
	return c.post("/api/v1/downloads/cancel", nil, nil)
}

// Remove удаляет задачу и, если deleteFile, её файл.
func (c *Client) Remove(id string, deleteFile bool) error {
	return c.delete("/api/v1/downloads/" + url.PathEscape(id) + "?delete_file=" + strconv.FormatBool(deleteFile))
}

// RemoveAll удаляет все задачи и, если deleteFiles, их файлы.
func (c *Client) RemoveAll(deleteFiles bool) error {
	return c.delete("/api/v1/downloads?delete_files=" + strconv.FormatBool(deleteFiles))
}

// Stats возвращает загрузку планировщика.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// --- Streams ---

// WatchTask вызывает fn на каждое изменение задачи id.
// nil — задачи нет. Возврат errStopStream из fn завершает поток без ошибки.
func (c *Client) WatchTask(ctx context.Context, id string, fn func(*TaskResponse) error) error {
	return c.stream(ctx, "/api/v1/downloads/"+url.PathEscape(id)+"/events", func(_ string, data []byte) error {
		var task *TaskResponse
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode task: %w", err)
		}
		return fn(task)
	})
}

// WatchTasks вызывает fn на каждый снимок задач ids.
func (c *Client) WatchTasks(ctx context.Context, ids []string, fn func(map[string]TaskResponse) error) error {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))

	return c.stream(ctx, "/api/v1/events?"+params.Encode(), func(_ string, data []byte) error {
		var tasks map[string]TaskResponse
		if err := json.Unmarshal(data, &tasks); err != nil {
			return fmt.Errorf("decode tasks: %w", err)
		}
		return fn(tasks)
	})
}

// WatchResults вызывает fn на каждый новый финальный результат.
func (c *Client) WatchResults(ctx context.Context, fn func(ResultResponse) error) error {
	return c.stream(ctx, "/api/v1/results", func(_ string, data []byte) error {
		var res ResultResponse
		if err := json.Unmarshal(data, &res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return fn(res)
	})
}

// stream читает SSE поток path до отмены ctx, конца потока или ошибки fn.
func (c *Client) stream(ctx context.Context, path string, fn func(event string, data []byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				err := fn(event, data.Bytes())
				if errors.Is(err, errStopStream) {
					return nil
				}
				if err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// комментарий (ping)
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
