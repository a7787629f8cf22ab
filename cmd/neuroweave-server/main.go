// NeuroWeave Server — API, оркестратор и планировщик в одном процессе.
//
// Server:
//   - Принимает задачи через HTTP API и декомпозирует их на юниты
//   - Раздаёт юниты воркерам по poll-протоколу
//   - Агрегирует результаты юнитов в итоговый результат задачи
//   - Вычищает молчащих воркеров и возвращает их юниты в раздачу
//   - Подаёт задачи по расписаниям
//
// Хранилище выбирается переменной DB_URL: Postgres, если она задана,
// иначе in-memory (один процесс). На Postgres сервер можно запускать
// в несколько реплик; цикл планировщика тикает только у лидера.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Neuroweave/internal/api"
	"github.com/shaiso/Neuroweave/internal/mq"
	"github.com/shaiso/Neuroweave/internal/orchestrator"
	"github.com/shaiso/Neuroweave/internal/scheduler"
	"github.com/shaiso/Neuroweave/internal/store"
	"github.com/shaiso/Neuroweave/internal/store/memory"
	"github.com/shaiso/Neuroweave/internal/store/postgres"
	"github.com/shaiso/Neuroweave/internal/telemetry"
)

const (
	schedLockKey     int64 = 424242
	schedTickInterval      = 1 * time.Second
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_server_http_requests_total",
		Help: "Total HTTP requests handled by neuroweave_server",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting neuroweave-server")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище: Postgres при заданном DB_URL, иначе in-memory
	var st store.Store
	var pg *postgres.Store
	if dsn := os.Getenv("DB_URL"); dsn != "" {
		var err error
		pg, err = postgres.New(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memory.New()
		logger.Info("using in-memory store")
	}
	defer st.Close()

	// RabbitMQ (опционально): события задач + подсказки воркерам
	var publisher *mq.Publisher
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Оркестратор: декомпозиция, агрегация, purge
	orch := orchestrator.New(orchestrator.Config{
		Store:           st,
		Publisher:       publisher,
		LivenessTimeout: envDuration(logger, "LIVENESS_TIMEOUT"),
		PurgeGrace:      envDuration(logger, "PURGE_GRACE"),
		PurgeInterval:   envDuration(logger, "PURGE_INTERVAL"),
		MaxRetries:      envInt(logger, "MAX_RETRIES"),
		BackoffHint:     time.Duration(envInt(logger, "POLL_BACKOFF_MS")) * time.Millisecond,
		Logger:          logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Планировщик
	sched := scheduler.New(scheduler.Config{
		Store:     st,
		Submitter: orch,
		Logger:    logger,
	})
	go runScheduler(ctx, sched, pg, logger)

	// API handler
	handler := api.NewHandler(api.Config{
		Orchestrator: orch,
		Store:        st,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics. Потеря RabbitMQ не делает сервер нездоровым —
	// poll-протокол работает и без подсказок, статус только информирует.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		mqState := "off"
		if mqConn != nil {
			mqState = "down"
			if mqConn.IsConnected() {
				mqState = "up"
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok uptime=%s mq=%s", time.Since(startTime), mqState)
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	orch.Stop()
	logger.Info("neuroweave-server stopped")
}

// runScheduler крутит тики планировщика.
//
// На Postgres между репликами выбирается лидер через advisory lock:
// тикает только один процесс, остальные пропускают тики, пока лидер
// держит блокировку. На in-memory хранилище процесс один, гейт не нужен.
func runScheduler(ctx context.Context, sched *scheduler.Scheduler, pg *postgres.Store, logger *slog.Logger) {
	tk := time.NewTicker(schedTickInterval)
	defer tk.Stop()

	var hasLock bool
	defer func() {
		if hasLock && pg != nil {
			_ = pg.AdvisoryUnlock(context.Background(), schedLockKey)
		}
	}()

	for {
		select {
		case <-tk.C:
			if pg != nil && !hasLock {
				ok, err := pg.TryAdvisoryLock(ctx, schedLockKey)
				if err != nil {
					logger.Warn("scheduler lock", "error", err)
					continue
				}
				hasLock = ok
			}
			if pg != nil && !hasLock {
				// не лидер — пропускаем тик
				continue
			}

			if err := sched.Tick(ctx); err != nil {
				logger.Error("scheduler tick", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// envDuration читает длительность из окружения ("30s", "1m").
// Пустое значение или ошибка разбора — 0, компонент подставит default.
func envDuration(logger *slog.Logger, name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("invalid duration in env, using default", "name", name, "value", v)
		return 0
	}
	return d
}

// envInt читает целое из окружения.
// Пустое значение или ошибка разбора — 0, компонент подставит default.
func envInt(logger *slog.Logger, name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("invalid integer in env, using default", "name", name, "value", v)
		return 0
	}
	return n
}
