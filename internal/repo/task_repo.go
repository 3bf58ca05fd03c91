package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/telemetry"
)

// NotifyChannel — канал LISTEN/NOTIFY, в который пишется ID изменённой задачи.
const NotifyChannel = "download_tasks_changed"

// TaskRepo — хранилище задач в PostgreSQL.
//
// Каждая запись выполняется в транзакции с блокировкой строки
// (SELECT ... FOR UPDATE), поэтому проверка перехода состояния и запись
// атомарны для ключа. Уведомления об изменениях рассылаются через
// pg_notify и доходят до всех экземпляров, которые вызвали Listen.
type TaskRepo struct {
	pool     *pgxpool.Pool
	notifier *Notifier
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{
		pool:     pool,
		notifier: NewNotifier(),
	}
}

// Migrate создаёт схему, если её ещё нет.
func (r *TaskRepo) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS download_tasks (
			id            TEXT PRIMARY KEY,
			url           TEXT NOT NULL,
			destination   TEXT NOT NULL,
			state         TEXT NOT NULL,
			bytes_written BIGINT,
			total_bytes   BIGINT,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_download_tasks_state ON download_tasks(state)`,
	}

	for _, m := range migrations {
		if _, err := r.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migrate %q: %w", firstLine(m), err)
		}
	}
	return nil
}

const taskColumns = `id, url, destination, state, bytes_written, total_bytes, updated_at`

// Get возвращает задачу по ID.
func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM download_tasks WHERE id = $1`
	return r.scanTask(r.pool.QueryRow(ctx, query, id))
}

// GetMany возвращает существующие задачи из ids.
func (r *TaskRepo) GetMany(ctx context.Context, ids []string) ([]domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + taskColumns + ` FROM download_tasks WHERE id = ANY($1) ORDER BY id`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return r.collectTasks(rows)
}

// List возвращает все задачи.
func (r *TaskRepo) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM download_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return r.collectTasks(rows)
}

// InsertOrUpdate создаёт запись или перезаписывает существующую.
func (r *TaskRepo) InsertOrUpdate(ctx context.Context, req domain.Request, state domain.State) (*domain.Task, error) {
	var task *domain.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := r.scanTask(tx.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM download_tasks WHERE id = $1 FOR UPDATE`, req.ID))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if current != nil && !domain.CanTransition(current.State, state) {
			return fmt.Errorf("upsert task %s %s → %s: %w", req.ID, current.State.Kind, state.Kind, ErrInvalidState)
		}

		kind, written, total := stateColumns(state)
		task, err = r.scanTask(tx.QueryRow(ctx, `
			INSERT INTO download_tasks (id, url, destination, state, bytes_written, total_bytes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (id) DO UPDATE SET
				url = EXCLUDED.url,
				destination = EXCLUDED.destination,
				state = EXCLUDED.state,
				bytes_written = EXCLUDED.bytes_written,
				total_bytes = EXCLUDED.total_bytes,
				updated_at = EXCLUDED.updated_at
			RETURNING `+taskColumns,
			req.ID, req.URL, req.Destination, kind, written, total,
		))
		if err != nil {
			return fmt.Errorf("upsert task: %w", err)
		}

		return notify(ctx, tx, req.ID)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateState меняет состояние задачи, если переход разрешён.
func (r *TaskRepo) UpdateState(ctx context.Context, id string, state domain.State) (*domain.Task, error) {
	var task *domain.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := r.scanTask(tx.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM download_tasks WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.State, state) {
			return fmt.Errorf("update task %s %s → %s: %w", id, current.State.Kind, state.Kind, ErrInvalidState)
		}

		kind, written, total := stateColumns(state)
		task, err = r.scanTask(tx.QueryRow(ctx, `
			UPDATE download_tasks
			SET state = $2, bytes_written = $3, total_bytes = $4, updated_at = now()
			WHERE id = $1
			RETURNING `+taskColumns,
			id, kind, written, total,
		))
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		return notify(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// MarkAllNonTerminalCancelled переводит все ENQUEUED и DOWNLOADING задачи в CANCELLED.
func (r *TaskRepo) MarkAllNonTerminalCancelled(ctx context.Context) ([]domain.Task, error) {
	var changed []domain.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE download_tasks
			SET state = $1, bytes_written = NULL, total_bytes = NULL, updated_at = now()
			WHERE state = ANY($2)
			RETURNING `+taskColumns,
			string(domain.StateCancelled), cancellableKinds,
		)
		if err != nil {
			return fmt.Errorf("cancel tasks: %w", err)
		}
		if changed, err = r.collectTasks(rows); err != nil {
			return err
		}
		return notifyTasks(ctx, tx, changed)
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// Remove удаляет задачу и возвращает удалённую запись.
func (r *TaskRepo) Remove(ctx context.Context, id string) (*domain.Task, error) {
	var task *domain.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		task, err = r.scanTask(tx.QueryRow(ctx,
			`DELETE FROM download_tasks WHERE id = $1 RETURNING `+taskColumns, id))
		if err != nil {
			return err
		}
		return notify(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// RemoveAll удаляет все задачи и возвращает удалённые записи.
func (r *TaskRepo) RemoveAll(ctx context.Context) ([]domain.Task, error) {
	var removed []domain.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM download_tasks RETURNING `+taskColumns)
		if err != nil {
			return fmt.Errorf("remove tasks: %w", err)
		}
		if removed, err = r.collectTasks(rows); err != nil {
			return err
		}
		return notifyTasks(ctx, tx, removed)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Subscribe возвращает канал уведомлений об изменении задач ids.
// Уведомления приходят, пока работает Listen.
func (r *TaskRepo) Subscribe(ctx context.Context, ids []string) (<-chan struct{}, error) {
	return r.notifier.Watch(ctx, ids), nil
}

// Listen слушает NotifyChannel и пересылает уведомления подписчикам.
// Блокируется до отмены ctx, при обрыве соединения переподключается
// с экспоненциальной задержкой.
func (r *TaskRepo) Listen(ctx context.Context) error {
	logger := telemetry.FromContext(ctx)
	delay := time.Second

	for {
		err := r.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("listen failed, retrying", "channel", NotifyChannel, "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}

// listen держит выделенное соединение с LISTEN до первой ошибки.
func (r *TaskRepo) listen(ctx context.Context) error {
	pooled, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	conn := pooled.Hijack()
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Пока соединения не было, часть уведомлений могла потеряться
	r.notifier.Broadcast()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		r.notifier.Notify(n.Payload)
	}
}

// --- Helpers ---

func notify(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func notifyTasks(ctx context.Context, tx pgx.Tx, tasks []domain.Task) error {
	for _, t := range tasks {
		if err := notify(ctx, tx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *TaskRepo) scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var kind string
	var written, total *int64

	err := row.Scan(
		&task.ID,
		&task.URL,
		&task.Destination,
		&kind,
		&written,
		&total,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.State = stateFromColumns(kind, written, total)
	return &task, nil
}

func (r *TaskRepo) collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
