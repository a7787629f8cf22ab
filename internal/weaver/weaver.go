package weaver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/mq"
	"github.com/shaiso/Neuroweave/internal/telemetry"
)

// Default configuration values.
const (
	defaultHeartbeatInterval = 10 * time.Second
	defaultPollInterval      = 5 * time.Second
	defaultHintPrefetch      = 1

	reportAttempts = 5
	reportBackoff  = 2 * time.Second
)

// Weaver выполняет юниты работы.
//
// Weaver — stateless компонент системы, который:
//   - Регистрируется у оркестратора и получает идентификатор
//   - Периодически подтверждает живость через heartbeat
//   - Поллит юниты работы по своим capabilities (pull-модель)
//   - Выполняет юнит executor'ом соответствующего типа задачи
//   - Отчитывается о результате (успех или ошибка)
//   - Слушает подсказки work.available из RabbitMQ (опционально)
//
// Weavers масштабируются горизонтально — каждый процесс регистрируется
// под собственным идентификатором и забирает юниты атомарным claim.
type Weaver struct {
	client   *Client
	registry *Registry

	address      string
	capabilities []string

	// MQ (опционально)
	conn     *mq.Connection
	consumer *mq.Consumer

	heartbeatInterval time.Duration
	pollInterval      time.Duration

	// Идентификатор текущей регистрации. Меняется при re-register,
	// поэтому под mutex: heartbeat и work loop читают конкурентно.
	id   uuid.UUID
	idMu sync.RWMutex

	// wakeCh будит workLoop при подсказке о новой работе
	wakeCh chan struct{}

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Weaver.
type Config struct {
	// ServerURL — базовый URL API оркестратора ("http://localhost:8080").
	ServerURL string

	// Address — адрес воркера, сообщаемый при регистрации (опционально).
	Address string

	// Registry — реестр executor'ов (nil — NewRegistry()).
	Registry *Registry

	// Capabilities — поддерживаемые типы задач.
	// Если пусто — все типы Registry.
	Capabilities []string

	// Conn — подключение к RabbitMQ для подсказок о работе (опционально;
	// без него воркер живёт на одном polling).
	Conn *mq.Connection

	// Интервалы
	HeartbeatInterval time.Duration // интервал heartbeat (default: 10s)
	PollInterval      time.Duration // пауза между poll без работы (default: 5s)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Weaver.
func New(cfg Config) *Weaver {
	heartbeatInterval := cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	capabilities := cfg.Capabilities
	if len(capabilities) == 0 {
		capabilities = registry.Types()
	}

	return &Weaver{
		client:            NewClient(cfg.ServerURL),
		registry:          registry,
		address:           cfg.Address,
		capabilities:      capabilities,
		conn:              cfg.Conn,
		heartbeatInterval: heartbeatInterval,
		pollInterval:      pollInterval,
		wakeCh:            make(chan struct{}, 1),
		logger:            logger,
	}
}

// Start регистрирует воркера и запускает циклы.
//
// Запускает:
//   - heartbeat loop
//   - work loop (poll → execute → report)
//   - Consumer для work.available (если настроен MQ)
//
// Ошибка первичной регистрации фатальна: без идентификатора воркеру
// нечего делать, перезапуск — забота супервизора процесса.
func (w *Weaver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	id, err := w.client.Register(ctx, w.address, w.capabilities)
	if err != nil {
		cancel()
		return fmt.Errorf("register weaver: %w", err)
	}
	w.idMu.Lock()
	w.id = id
	w.idMu.Unlock()

	w.logger.Info("weaver registered",
		"weaver_id", id,
		"capabilities", w.capabilities,
		"heartbeat_interval", w.heartbeatInterval,
		"poll_interval", w.pollInterval,
	)

	// Consumer подсказок о работе
	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueWorkAvailable),
			Handler:  w.handleWorkAvailable,
			Prefetch: defaultHintPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("work hint consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.heartbeatLoop(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.workLoop(ctx)
	}()

	w.logger.Info("weaver started")
	return nil
}

// Stop останавливает Weaver.
func (w *Weaver) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping weaver...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("weaver stopped")
}

// IsStopped проверяет, остановлен ли Weaver.
func (w *Weaver) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// ID возвращает идентификатор текущей регистрации.
func (w *Weaver) ID() uuid.UUID {
	w.idMu.RLock()
	defer w.idMu.RUnlock()
	return w.id
}

// reregister получает новую регистрацию, если её ещё не получил другой
// цикл. failedID — идентификатор, с которым словили ErrNotRegistered.
func (w *Weaver) reregister(ctx context.Context, failedID uuid.UUID) (uuid.UUID, error) {
	w.idMu.Lock()
	defer w.idMu.Unlock()

	// Другая горутина уже перерегистрировалась
	if w.id != failedID {
		return w.id, nil
	}

	newID, err := w.client.Register(ctx, w.address, w.capabilities)
	if err != nil {
		return uuid.Nil, fmt.Errorf("re-register: %w", err)
	}

	w.logger.Info("re-registered", "weaver_id", newID, "previous", failedID)
	w.id = newID
	return newID, nil
}

// --- Heartbeat ---

// heartbeatLoop — цикл подтверждения живости.
func (w *Weaver) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.heartbeat(ctx)
		}
	}
}

// heartbeat выполняет один heartbeat.
func (w *Weaver) heartbeat(ctx context.Context) {
	id := w.ID()
	wlog := telemetry.WithWeaverID(w.logger, id.String())

	err := w.client.Heartbeat(ctx, id)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	if errors.Is(err, ErrNotRegistered) {
		wlog.Warn("registration lost, re-registering")
		if _, rerr := w.reregister(ctx, id); rerr != nil {
			wlog.Error("re-register failed", "error", rerr)
		}
		return
	}

	wlog.Warn("heartbeat failed", "error", err)
}

// --- Work loop ---

// workLoop — основной цикл: poll → execute → report.
func (w *Weaver) workLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		idle, err := w.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("poll failed", "error", err)
			idle = w.pollInterval
		}

		// Юнит выполнен — сразу за следующим
		if idle <= 0 {
			continue
		}

		// Пауза до следующего poll: срезается подсказкой из MQ
		select {
		case <-ctx.Done():
			return
		case <-w.wakeCh:
		case <-time.After(idle):
		}
	}
}

// pollOnce выполняет один poll. Возвращает паузу до следующего poll;
// 0 — работа была (или регистрация обновлена), поллим сразу.
func (w *Weaver) pollOnce(ctx context.Context) (time.Duration, error) {
	id := w.ID()

	unit, backoff, err := w.client.Poll(ctx, id, w.capabilities)
	if err != nil {
		if errors.Is(err, ErrNotRegistered) {
			if _, rerr := w.reregister(ctx, id); rerr != nil {
				return 0, rerr
			}
			return 0, nil
		}
		return 0, err
	}

	if unit == nil {
		if backoff <= 0 {
			backoff = w.pollInterval
		}
		return backoff, nil
	}

	w.processUnit(ctx, unit)
	return 0, nil
}

// processUnit выполняет юнит и отчитывается о результате.
func (w *Weaver) processUnit(ctx context.Context, unit *domain.WorkUnit) {
	ulog := telemetry.WithUnitID(w.logger, unit.ID.String())

	ulog.Info("unit started",
		"task_id", unit.TaskID,
		"type", unit.TaskType,
		"ordinal", unit.Ordinal,
		"retry_count", unit.RetryCount,
	)

	result, execErr := w.execute(ctx, unit)

	// Останов во время выполнения: отчёта не будет, юнит вернётся
	// в очередь через liveness purge
	if execErr != nil && ctx.Err() != nil {
		ulog.Warn("unit execution interrupted")
		return
	}

	// Успех — нет ни инфраструктурной, ни логической ошибки
	if execErr == nil && (result == nil || result.Error == "") {
		var output map[string]any
		if result != nil {
			output = result.Output
		}
		w.report(ctx, unit, true, output, "")

		ulog.Info("unit completed",
			"task_id", unit.TaskID,
			"ordinal", unit.Ordinal,
		)
		return
	}

	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	} else {
		errMsg = result.Error
	}

	w.report(ctx, unit, false, nil, errMsg)

	ulog.Warn("unit failed",
		"task_id", unit.TaskID,
		"ordinal", unit.Ordinal,
		"error", errMsg,
	)
}

// execute выбирает executor по типу задачи юнита и выполняет его.
func (w *Weaver) execute(ctx context.Context, unit *domain.WorkUnit) (*ExecutionResult, error) {
	executor, err := w.registry.Get(unit.TaskType)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, unit)
}

// report доставляет результат с повторами: потерянный отчёт оставил бы
// юнит в ASSIGNED до purge регистрации воркера.
func (w *Weaver) report(ctx context.Context, unit *domain.WorkUnit, success bool, output map[string]any, errMsg string) {
	id := w.ID()

	for attempt := 1; ; attempt++ {
		err := w.client.ReportResult(ctx, unit.ID, id, success, output, errMsg)
		if err == nil {
			return
		}

		switch {
		case errors.Is(err, ErrAssignmentMismatch):
			// Юнит переназначен другому воркеру, результат сбрасывается
			w.logger.Warn("report rejected, unit reassigned", "unit_id", unit.ID)
			return
		case errors.Is(err, ErrNotRegistered):
			// Оркестратор нас забыл: юнит уже возвращён в очередь
			w.logger.Warn("report rejected, registration lost", "unit_id", unit.ID)
			if _, rerr := w.reregister(ctx, id); rerr != nil {
				w.logger.Error("re-register failed", "error", rerr)
			}
			return
		}

		if attempt >= reportAttempts || ctx.Err() != nil {
			w.logger.Error("failed to report result, giving up",
				"unit_id", unit.ID,
				"attempts", attempt,
				"error", err,
			)
			return
		}

		w.logger.Warn("failed to report result, retrying",
			"unit_id", unit.ID,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-time.After(reportBackoff):
		case <-ctx.Done():
			return
		}
	}
}

// --- MQ hints ---

// handleWorkAvailable будит workLoop при подсказке о новой работе.
func (w *Weaver) handleWorkAvailable(_ context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.WorkAvailablePayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse work.available payload", "error", err)
		return err
	}

	w.logger.Debug("received work.available hint",
		"task_id", payload.TaskID,
		"units", payload.Units,
	)

	w.nudge()
	return nil
}

// nudge будит workLoop, если тот ждёт паузу между poll.
func (w *Weaver) nudge() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}
