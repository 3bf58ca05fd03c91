//go:build integration

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shaiso/Downloader/internal/domain"
)

// startPostgres поднимает PostgreSQL в контейнере и возвращает DSN.
func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "downloader",
			"POSTGRES_PASSWORD": "downloader",
			"POSTGRES_DB":       "downloader",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	return fmt.Sprintf("postgresql://downloader:downloader@%s:%s/downloader?sslmode=disable", host, port.Port())
}

func TestIntegrationTaskRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dsn := startPostgres(t, ctx)

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(pool.Close)

	runStoreSuite(t, func(t *testing.T) store {
		r := NewTaskRepo(pool)
		if err := r.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if _, err := pool.Exec(ctx, `TRUNCATE download_tasks`); err != nil {
			t.Fatalf("truncate: %v", err)
		}

		listenCtx, stop := context.WithCancel(ctx)
		go r.Listen(listenCtx)
		t.Cleanup(stop)

		// LISTEN должен успеть выполниться до первой записи
		time.Sleep(200 * time.Millisecond)
		return r
	})
}

func TestIntegrationTaskRepo_NotifiesOtherInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := NewPool(ctx, startPostgres(t, ctx))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	writer := NewTaskRepo(pool)
	reader := NewTaskRepo(pool)
	if err := writer.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	go reader.Listen(ctx)
	time.Sleep(200 * time.Millisecond)

	changes, _ := reader.Subscribe(ctx, []string{"a"})
	if _, err := writer.InsertOrUpdate(ctx, request("a"), domain.NewState(domain.StateEnqueued)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(10 * time.Second):
		t.Fatal("reader should be notified about writer's change")
	}
}
