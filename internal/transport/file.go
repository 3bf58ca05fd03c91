package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// partSuffix — суффикс временного файла на время загрузки.
const partSuffix = ".part"

// ProgressWriter оборачивает writer и сообщает о прогрессе после каждой записи.
type ProgressWriter struct {
	// Writer — куда пишем данные.
	Writer io.Writer

	// Total — ожидаемый размер (0, если неизвестен).
	Total int64

	// Written — сколько байт уже записано.
	Written int64

	// OnUpdate вызывается после каждой записи с (written, total).
	OnUpdate func(written, total int64)
}

// Write реализует io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil && n > 0 {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// ctxReader прерывает чтение после отмены контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// writeFile копирует src в dest через временный файл dest.part.
// При ошибке временный файл удаляется, dest не трогается.
func writeFile(ctx context.Context, dest string, src io.Reader, total int64, report reportFunc) error {
	if total < 0 {
		total = 0
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create destination dir: %w", err)
		}
	}

	part := dest + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	report(0, total)

	pw := &ProgressWriter{Writer: f, Total: total, OnUpdate: report}
	_, copyErr := io.Copy(pw, ctxReader{ctx: ctx, r: src})
	closeErr := f.Close()

	if copyErr != nil {
		os.Remove(part)
		return fmt.Errorf("copy body: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(part)
		return fmt.Errorf("close file: %w", closeErr)
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}
