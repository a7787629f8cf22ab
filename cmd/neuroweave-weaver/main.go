// NeuroWeave Weaver — воркер, выполняющий юниты работы.
//
// Weaver:
//   - Регистрируется на сервере и шлёт heartbeat
//   - Забирает юниты по poll-протоколу (плюс подсказки из RabbitMQ)
//   - Выполняет юниты по типу задачи (inference, sleep, echo)
//   - Отчитывается о результатах с повторами при сетевых сбоях
//
// Weavers масштабируются горизонтально.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Neuroweave/internal/mq"
	"github.com/shaiso/Neuroweave/internal/tasktype"
	"github.com/shaiso/Neuroweave/internal/telemetry"
	"github.com/shaiso/Neuroweave/internal/weaver"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting neuroweave-weaver")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	// Реестр executor'ов. MODEL_URL включает удалённый inference;
	// без него модель эмулируется локальной заглушкой.
	registry := weaver.NewRegistry()
	if modelURL := os.Getenv("MODEL_URL"); modelURL != "" {
		registry.Register(tasktype.TypeInference, weaver.NewInferenceExecutor(modelURL))
		logger.Info("remote inference enabled", "model_url", modelURL)
	}

	var capabilities []string
	if v := os.Getenv("WEAVER_CAPABILITIES"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				capabilities = append(capabilities, c)
			}
		}
	}

	// RabbitMQ (опционально): подсказки о появлении работы
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	conn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer conn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, conn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		mqConn = conn
	}

	// Создаём weaver
	w := weaver.New(weaver.Config{
		ServerURL:         serverURL,
		Address:           os.Getenv("WEAVER_ADDRESS"),
		Registry:          registry,
		Capabilities:      capabilities,
		Conn:              mqConn,
		HeartbeatInterval: envDuration(logger, "HEARTBEAT_INTERVAL"),
		PollInterval:      envDuration(logger, "POLL_INTERVAL"),
		Logger:            logger,
	})

	// Запускаем weaver (регистрация на сервере внутри)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start weaver", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WEAVER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем weaver
	w.Stop()
	logger.Info("neuroweave-weaver stopped")
}

// envDuration читает длительность из окружения ("10s", "1m").
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
