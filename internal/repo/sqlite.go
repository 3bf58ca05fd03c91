package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go драйвер SQLite

	"github.com/shaiso/Downloader/internal/domain"
)

// SQLiteStore — хранилище задач в файле SQLite.
//
// Подходит для одного процесса: уведомления об изменениях рассылаются
// внутри процесса. Запись сериализуется единственным соединением.
type SQLiteStore struct {
	db       *sql.DB
	notifier *Notifier
}

// OpenSQLite открывает (или создаёт) базу по пути path и применяет миграции.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite — один писатель
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, notifier: NewNotifier()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate применяет идемпотентные миграции.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS download_tasks (
			id            TEXT PRIMARY KEY,
			url           TEXT NOT NULL,
			destination   TEXT NOT NULL,
			state         TEXT NOT NULL,
			bytes_written INTEGER,
			total_bytes   INTEGER,
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_download_tasks_state ON download_tasks(state)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(m), err)
		}
	}
	return nil
}

const sqliteColumns = `id, url, destination, state, bytes_written, total_bytes, updated_at`

// Get возвращает задачу по ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM download_tasks WHERE id = ?`, id)
	return scanSQLiteTask(row)
}

// GetMany возвращает существующие задачи из ids.
func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) ([]domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM download_tasks WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return collectSQLiteTasks(rows)
}

// List возвращает все задачи.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM download_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectSQLiteTasks(rows)
}

// InsertOrUpdate создаёт запись или перезаписывает существующую.
func (s *SQLiteStore) InsertOrUpdate(ctx context.Context, req domain.Request, state domain.State) (*domain.Task, error) {
	var task *domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanSQLiteTask(tx.QueryRowContext(ctx,
			`SELECT `+sqliteColumns+` FROM download_tasks WHERE id = ?`, req.ID))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if current != nil && !domain.CanTransition(current.State, state) {
			return fmt.Errorf("upsert task %s %s → %s: %w", req.ID, current.State.Kind, state.Kind, ErrInvalidState)
		}

		kind, written, total := stateColumns(state)
		now := time.Now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO download_tasks (id, url, destination, state, bytes_written, total_bytes, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				url = excluded.url,
				destination = excluded.destination,
				state = excluded.state,
				bytes_written = excluded.bytes_written,
				total_bytes = excluded.total_bytes,
				updated_at = excluded.updated_at
		`, req.ID, req.URL, req.Destination, kind, written, total, now.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert task: %w", err)
		}

		task = &domain.Task{
			ID:          req.ID,
			URL:         req.URL,
			Destination: req.Destination,
			State:       state,
			UpdatedAt:   now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(req.ID)
	return task, nil
}

// UpdateState меняет состояние задачи, если переход разрешён.
func (s *SQLiteStore) UpdateState(ctx context.Context, id string, state domain.State) (*domain.Task, error) {
	var task *domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanSQLiteTask(tx.QueryRowContext(ctx,
			`SELECT `+sqliteColumns+` FROM download_tasks WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.State, state) {
			return fmt.Errorf("update task %s %s → %s: %w", id, current.State.Kind, state.Kind, ErrInvalidState)
		}

		kind, written, total := stateColumns(state)
		now := time.Now()
		_, err = tx.ExecContext(ctx, `
			UPDATE download_tasks
			SET state = ?, bytes_written = ?, total_bytes = ?, updated_at = ?
			WHERE id = ?
		`, kind, written, total, now.UnixNano(), id)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		current.State = state
		current.UpdatedAt = now
		task = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(id)
	return task, nil
}

// MarkAllNonTerminalCancelled переводит все ENQUEUED и DOWNLOADING задачи в CANCELLED.
func (s *SQLiteStore) MarkAllNonTerminalCancelled(ctx context.Context) ([]domain.Task, error) {
	var changed []domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE download_tasks
			SET state = ?, bytes_written = NULL, total_bytes = NULL, updated_at = ?
			WHERE state IN (?, ?)
			RETURNING `+sqliteColumns,
			string(domain.StateCancelled), time.Now().UnixNano(), cancellableKinds[0], cancellableKinds[1])
		if err != nil {
			return fmt.Errorf("cancel tasks: %w", err)
		}
		changed, err = collectSQLiteTasks(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyTasks(changed)
	return changed, nil
}

// Remove удаляет задачу и возвращает удалённую запись.
func (s *SQLiteStore) Remove(ctx context.Context, id string) (*domain.Task, error) {
	task, err := scanSQLiteTask(s.db.QueryRowContext(ctx,
		`DELETE FROM download_tasks WHERE id = ? RETURNING `+sqliteColumns, id))
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(id)
	return task, nil
}

// RemoveAll удаляет все задачи и возвращает удалённые записи.
func (s *SQLiteStore) RemoveAll(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM download_tasks RETURNING `+sqliteColumns)
	if err != nil {
		return nil, fmt.Errorf("remove tasks: %w", err)
	}
	removed, err := collectSQLiteTasks(rows)
	if err != nil {
		return nil, err
	}

	s.notifyTasks(removed)
	return removed, nil
}

// Subscribe возвращает канал уведомлений об изменении задач ids.
func (s *SQLiteStore) Subscribe(ctx context.Context, ids []string) (<-chan struct{}, error) {
	return s.notifier.Watch(ctx, ids), nil
}

// --- Helpers ---

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) notifyTasks(tasks []domain.Task) {
	if len(tasks) == 0 {
		return
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	s.notifier.Notify(ids...)
}

// rowScanner — общий интерфейс *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var kind string
	var written, total *int64
	var updatedAt int64

	err := row.Scan(&task.ID, &task.URL, &task.Destination, &kind, &written, &total, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.State = stateFromColumns(kind, written, total)
	task.UpdatedAt = time.Unix(0, updatedAt)
	return &task, nil
}

func collectSQLiteTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
