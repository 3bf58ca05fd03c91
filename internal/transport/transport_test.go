package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/shaiso/Downloader/internal/domain"
)

// drain читает прогресс до завершения передачи.
func drain(t *testing.T, tr *Transfer) []domain.Progress {
	t.Helper()

	var events []domain.Progress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-tr.Progress():
			events = append(events, p)
		case <-tr.Done():
			return events
		case <-timeout:
			t.Fatal("transfer did not finish")
			return nil
		}
	}
}

// --- HTTP Tests ---

func TestHTTP_Download(t *testing.T) {
	body := strings.Repeat("x", 100_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("expected user agent %q, got %q", DefaultUserAgent, ua)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "file.bin")
	h := NewHTTP(HTTPConfig{})

	tr, err := h.Start(context.Background(), domain.Request{ID: "a", URL: srv.URL, Destination: dest})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	events := drain(t, tr)
	if err := tr.Err(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := events[len(events)-1]
	if last.BytesWritten != int64(len(body)) || last.TotalBytes != int64(len(body)) {
		t.Errorf("unexpected last progress: %+v", last)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != body {
		t.Error("destination content mismatch")
	}
	if _, err := os.Stat(dest + partSuffix); !os.IsNotExist(err) {
		t.Error("part file should be gone")
	}
}

func TestHTTP_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.bin")
	tr, err := NewHTTP(HTTPConfig{}).Start(context.Background(), domain.Request{ID: "a", URL: srv.URL, Destination: dest})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	drain(t, tr)

	var statusErr *StatusError
	if !errors.As(tr.Err(), &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", tr.Err())
	}
	if !errors.Is(tr.Err(), ErrBadStatus) {
		t.Error("expected ErrBadStatus")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination should not exist")
	}
}

func TestHTTP_Abort(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	dest := filepath.Join(t.TempDir(), "file.bin")
	tr, err := NewHTTP(HTTPConfig{}).Start(context.Background(), domain.Request{ID: "a", URL: srv.URL, Destination: dest})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Ждём первого ненулевого прогресса.
	for p := range tr.Progress() {
		if p.BytesWritten > 0 {
			break
		}
	}
	tr.Abort()

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not stop after abort")
	}
	if !errors.Is(tr.Err(), ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", tr.Err())
	}
	if _, err := os.Stat(dest + partSuffix); !os.IsNotExist(err) {
		t.Error("part file should be removed")
	}
}

// --- Blob Tests ---

func TestSplitObjectURL(t *testing.T) {
	tests := []struct {
		in, bucket, key string
	}{
		{"s3://bucket/dir/file.bin?region=eu-west-1", "s3://bucket?region=eu-west-1", "dir/file.bin"},
		{"mem://any/file.bin", "mem://any", "file.bin"},
		{"file:///data/dir/file.bin", "file:///data/dir", "file.bin"},
	}
	for _, tt := range tests {
		bucket, key, err := SplitObjectURL(tt.in)
		if err != nil {
			t.Errorf("SplitObjectURL(%q) error: %v", tt.in, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("SplitObjectURL(%q) = (%q, %q), want (%q, %q)", tt.in, bucket, key, tt.bucket, tt.key)
		}
	}

	if _, _, err := SplitObjectURL("s3://bucket"); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestBlob_DownloadFromMemBucket(t *testing.T) {
	content := []byte("object content")
	opener := func(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
		if bucketURL != "mem://test" {
			t.Errorf("unexpected bucket url %q", bucketURL)
		}
		b := memblob.OpenBucket(nil)
		if err := b.WriteAll(ctx, "dir/obj.txt", content, nil); err != nil {
			return nil, err
		}
		return b, nil
	}

	dest := filepath.Join(t.TempDir(), "obj.txt")
	tr, err := NewBlob(opener).Start(context.Background(), domain.Request{ID: "a", URL: "mem://test/dir/obj.txt", Destination: dest})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	events := drain(t, tr)

	if err := tr.Err(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	last := events[len(events)-1]
	if last.BytesWritten != int64(len(content)) || last.TotalBytes != int64(len(content)) {
		t.Errorf("unexpected last progress: %+v", last)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != string(content) {
		t.Errorf("content mismatch: %q", data)
	}
}

func TestBlob_DownloadFromFileBucket(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "src.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "dst.txt")
	tr, err := NewBlob(nil).Start(context.Background(), domain.Request{
		ID:          "a",
		URL:         "file://" + filepath.ToSlash(filepath.Join(srcDir, "src.txt")),
		Destination: dest,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	drain(t, tr)

	if err := tr.Err(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "hello" {
		t.Errorf("content mismatch: %q", data)
	}
}

func TestBlob_MissingObject(t *testing.T) {
	opener := func(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
		return memblob.OpenBucket(nil), nil
	}

	tr, err := NewBlob(opener).Start(context.Background(), domain.Request{ID: "a", URL: "mem://x/missing", Destination: filepath.Join(t.TempDir(), "f")})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	drain(t, tr)

	if tr.Err() == nil || errors.Is(tr.Err(), ErrAborted) {
		t.Errorf("expected transfer error, got %v", tr.Err())
	}
}

// --- Router Tests ---

func TestRouter_UnsupportedScheme(t *testing.T) {
	r := Default(NewHTTP(HTTPConfig{}), NewBlob(nil))

	_, err := r.Start(context.Background(), domain.Request{ID: "a", URL: "ftp://host/file", Destination: "/tmp/x"})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestRouter_Dispatch(t *testing.T) {
	m := NewManual()
	r := NewRouter().Handle(m, "MEM")

	tr, err := r.Start(context.Background(), domain.Request{ID: "a", URL: "mem://b/k", Destination: "/tmp/x"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if m.Starts("a") != 1 {
		t.Errorf("expected manual transport to start, got %d", m.Starts("a"))
	}
	tr.Abort()
	<-tr.Done()
}

// --- Manual Tests ---

func TestManual_ReportAndComplete(t *testing.T) {
	m := NewManual()
	tr, _ := m.Start(context.Background(), domain.Request{ID: "a"})
	mt, ok := m.WaitStarted("a", 1, time.Second)
	if !ok {
		t.Fatal("transfer not started")
	}

	go func() {
		mt.Report(10, 100)
		mt.Complete()
	}()

	events := drain(t, tr)
	if len(events) != 1 || events[0].BytesWritten != 10 {
		t.Errorf("unexpected events: %+v", events)
	}
	if tr.Err() != nil {
		t.Errorf("expected success, got %v", tr.Err())
	}
}

func TestManual_Abort(t *testing.T) {
	m := NewManual()
	tr, _ := m.Start(context.Background(), domain.Request{ID: "a"})
	mt, _ := m.Transfer("a")

	tr.Abort()
	select {
	case <-mt.Aborted():
	case <-time.After(time.Second):
		t.Fatal("expected aborted signal")
	}
	<-tr.Done()
	if !errors.Is(tr.Err(), ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", tr.Err())
	}
}

func TestManual_FailStart(t *testing.T) {
	m := NewManual()
	boom := errors.New("boom")
	m.FailStart("a", boom)

	if _, err := m.Start(context.Background(), domain.Request{ID: "a"}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if _, err := m.Start(context.Background(), domain.Request{ID: "a"}); err != nil {
		t.Errorf("second start should succeed, got %v", err)
	}
}
