package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Neuroweave/internal/mq"
	"github.com/shaiso/Neuroweave/internal/store"
	"github.com/shaiso/Neuroweave/internal/tasktype"
)

// Default configuration values.
const (
	defaultLivenessTimeout = 30 * time.Second
	defaultPurgeGrace      = 10 * time.Second
	defaultPurgeInterval   = 15 * time.Second
	defaultPollInterval    = 10 * time.Second
	defaultBatchSize       = 100
	defaultMaxRetries      = 3
	defaultBackoffHint     = 2 * time.Second
)

// Orchestrator управляет жизненным циклом задач.
//
// Orchestrator — центральный компонент системы, который:
//   - Принимает задачи и декомпозирует их на юниты (submit → decompose)
//   - Выдаёт юниты воркерам по pull-модели (Poll)
//   - Принимает результаты и ведёт retry-учёт (Report)
//   - Агрегирует результаты юнитов в результат задачи
//   - Удаляет умолкнувших воркеров и возвращает их юниты в очередь (purge)
type Orchestrator struct {
	store    store.Store
	registry *tasktype.Registry

	// MQ — опционально; без него система работает в polling-only режиме.
	publisher *mq.Publisher

	// Нотификация декомпозиции: submit будит цикл без ожидания тика.
	decomposeCh chan struct{}

	// Configuration
	livenessTimeout time.Duration
	purgeGrace      time.Duration
	purgeInterval   time.Duration
	pollInterval    time.Duration
	batchSize       int
	maxRetries      int
	backoffHint     time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — хранилище задач, юнитов и воркеров.
	Store store.Store

	// Registry — реестр типов задач (nil — реестр стандартных типов).
	Registry *tasktype.Registry

	// Publisher — опциональный publisher событий (nil — без MQ).
	Publisher *mq.Publisher

	// LivenessTimeout — сколько воркер может молчать, оставаясь живым (default: 30s).
	LivenessTimeout time.Duration

	// PurgeGrace — дополнительный запас к liveness timeout перед purge (default: 10s).
	PurgeGrace time.Duration

	// PurgeInterval — период цикла purge (default: 15s).
	PurgeInterval time.Duration

	// PollInterval — период fallback-сканирования PENDING задач (default: 10s).
	PollInterval time.Duration

	// BatchSize — количество задач за одно сканирование (default: 100).
	BatchSize int

	// MaxRetries — количество повторных попыток юнита сверх первой (default: 3).
	MaxRetries int

	// BackoffHint — подсказка паузы воркеру при пустом poll (default: 2s).
	BackoffHint time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	registry := cfg.Registry
	if registry == nil {
		registry = tasktype.DefaultRegistry()
	}

	livenessTimeout := cfg.LivenessTimeout
	if livenessTimeout <= 0 {
		livenessTimeout = defaultLivenessTimeout
	}

	purgeGrace := cfg.PurgeGrace
	if purgeGrace <= 0 {
		purgeGrace = defaultPurgeGrace
	}

	purgeInterval := cfg.PurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = defaultPurgeInterval
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	backoffHint := cfg.BackoffHint
	if backoffHint <= 0 {
		backoffHint = defaultBackoffHint
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:           cfg.Store,
		registry:        registry,
		publisher:       cfg.Publisher,
		decomposeCh:     make(chan struct{}, 1),
		livenessTimeout: livenessTimeout,
		purgeGrace:      purgeGrace,
		purgeInterval:   purgeInterval,
		pollInterval:    pollInterval,
		batchSize:       batchSize,
		maxRetries:      maxRetries,
		backoffHint:     backoffHint,
		logger:          logger,
	}
}

// Start запускает фоновые циклы Orchestrator.
//
// Запускает:
//   - Цикл декомпозиции (нотификации от submit + polling fallback)
//   - Цикл purge умолкнувших воркеров
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"liveness_timeout", o.livenessTimeout,
		"purge_grace", o.purgeGrace,
		"purge_interval", o.purgeInterval,
		"poll_interval", o.pollInterval,
		"max_retries", o.maxRetries,
	)

	// Запускаем цикл декомпозиции
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.decomposeLoop(ctx)
	}()

	// Запускаем цикл purge
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.purgeLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	// Ждём завершения горутин
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// MaxRetries возвращает действующий лимит повторных попыток юнита.
func (o *Orchestrator) MaxRetries() int {
	return o.maxRetries
}

// BackoffHint возвращает подсказку паузы для пустого poll.
func (o *Orchestrator) BackoffHint() time.Duration {
	return o.backoffHint
}

// decomposeLoop — цикл декомпозиции.
//
// Просыпается от нотификаций submit и по таймеру: polling fallback
// подхватывает задачи, созданные пока процесс был выключен, и задачи,
// чья нотификация потерялась.
func (o *Orchestrator) decomposeLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый проход сразу при старте
	o.decomposePending(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.decomposeCh:
			o.decomposePending(ctx)
		case <-ticker.C:
			o.decomposePending(ctx)
		}
	}
}

// nudgeDecompose будит цикл декомпозиции, не блокируясь.
func (o *Orchestrator) nudgeDecompose() {
	select {
	case o.decomposeCh <- struct{}{}:
	default:
	}
}

// purgeLoop — цикл удаления умолкнувших воркеров.
func (o *Orchestrator) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(o.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.purgeStaleWeavers(ctx)
		}
	}
}
