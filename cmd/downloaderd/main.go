// Downloaderd — демон загрузчика.
//
// Демон:
//   - Загружает конфигурацию (YAML + DOWNLOADER_* переменные окружения)
//   - Открывает хранилище задач (memory, sqlite или postgres)
//   - Поднимает шину команд (локальную или RabbitMQ)
//   - Запускает Downloader и HTTP API с /healthz и /metrics
//
// Несколько экземпляров с postgres и amqp делят одну очередь задач.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Downloader/internal/api"
	"github.com/shaiso/Downloader/internal/config"
	"github.com/shaiso/Downloader/internal/downloader"
	"github.com/shaiso/Downloader/internal/mq"
	"github.com/shaiso/Downloader/internal/repo"
	"github.com/shaiso/Downloader/internal/telemetry"
	"github.com/shaiso/Downloader/internal/transport"
)

// version задаётся через ldflags при сборке.
var version = "dev"

var startTime = time.Now()

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "downloaderd",
		Short:         "Download orchestrator daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("DOWNLOADER_CONFIG"), "Path to YAML config file")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// storeHandle — открытое хранилище и его фоновые задачи.
type storeHandle struct {
	store  downloader.Store
	listen func(ctx context.Context) error
	close  func()
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting downloaderd", "version", version)

	instance := cfg.Bus.Instance
	if instance == "" {
		instance = uuid.NewString()
	}
	logger = logger.With("instance", instance)

	// Хранилище
	sh, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer sh.close()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	// Транспорт
	tr := transport.Default(
		transport.NewHTTP(transport.HTTPConfig{
			UserAgent:     cfg.Transport.UserAgent,
			HeaderTimeout: cfg.Transport.HeaderTimeout,
		}),
		transport.NewBlob(nil),
	)
	logger.Info("transport ready", "schemes", tr.Schemes())

	g, gctx := errgroup.WithContext(ctx)

	// Шина команд
	var commandBus downloader.CommandBus
	var mqConn *mq.Connection
	if cfg.Bus.Driver == config.BusAMQP {
		url := cfg.Bus.AMQPURL
		if url == "" {
			url = mq.DefaultURL()
		}

		mqConn, err = mq.NewConnection(url, "downloaderd-"+instance, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			return fmt.Errorf("setup topology: %w", err)
		}
		logger.Info("rabbitmq topology ready", "topology", mq.TopologyInfo())

		cb := mq.NewCommandBus(mqConn, mq.CommandBusConfig{
			Instance: instance,
			Buffer:   cfg.Downloader.BusBuffer,
			Logger:   logger,
		})
		defer cb.Close()
		commandBus = cb
	}

	d := downloader.New(downloader.Config{
		Store:           sh.store,
		Transport:       tr,
		Bus:             commandBus,
		MaxConcurrent:   cfg.Downloader.MaxConcurrent,
		ThrottleWindow:  cfg.Downloader.ThrottleWindow,
		BusBuffer:       cfg.Downloader.BusBuffer,
		FinalizeTimeout: cfg.Downloader.FinalizeTimeout,
		CancelOnStop:    cfg.Downloader.CancelOnStop,
		ResumeOnStart:   cfg.Downloader.ResumeOnStart,
		Metrics:         metrics,
		Logger:          logger,
	})

	if mqConn != nil {
		relay := mq.NewResultRelay(mqConn, instance, logger)
		results := d.Results()
		g.Go(func() error {
			return relay.Run(gctx, results)
		})
	}

	if sh.listen != nil {
		g.Go(func() error {
			if err := sh.listen(telemetry.WithLogger(gctx, logger)); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := d.Start(gctx); err != nil {
		return fmt.Errorf("start downloader: %w", err)
	}

	// Consumer'ы стартуют после подписки планировщика.
	if cb, ok := commandBus.(*mq.CommandBus); ok {
		g.Go(func() error {
			return cb.Start(gctx)
		})
	}

	// HTTP API
	handler := api.NewHandler(api.Config{Downloader: d, Logger: logger})
	router := handler.Routes()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE потоки завершаются вместе с gctx.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		d.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}

// openStore открывает хранилище по конфигурации.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*storeHandle, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		logger.Warn("using in-memory store, tasks are lost on restart")
		return &storeHandle{store: repo.NewMemoryStore(), close: func() {}}, nil

	case config.StoreSQLite:
		s, err := repo.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return &storeHandle{
			store: s,
			close: func() {
				if err := s.Close(); err != nil {
					logger.Error("failed to close sqlite store", "error", err)
				}
			},
		}, nil

	case config.StorePostgres:
		pool, err := repo.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r := repo.NewTaskRepo(pool)
		if err := r.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres store connected")
		return &storeHandle{store: r, listen: r.Listen, close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
