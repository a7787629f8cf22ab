package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

// seedTask создаёт задачу и проводит её через декомпозицию:
// PENDING → DECOMPOSING → IN_PROGRESS с unitCount юнитами.
func seedTask(t *testing.T, st *Store, taskType string, unitCount int) (*domain.Task, []*domain.WorkUnit) {
	t.Helper()
	ctx := context.Background()

	task := &domain.Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    domain.TaskStatusPending,
		Payload:   map[string]any{"items": []any{"x"}},
		CreatedAt: time.Now(),
	}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := st.MarkTaskDecomposing(ctx, task.ID); err != nil {
		t.Fatalf("mark decomposing: %v", err)
	}

	now := time.Now()
	units := make([]*domain.WorkUnit, unitCount)
	for i := range units {
		units[i] = &domain.WorkUnit{
			ID:        uuid.New(),
			TaskID:    task.ID,
			TaskType:  taskType,
			Ordinal:   i,
			Status:    domain.UnitStatusPending,
			Payload:   map[string]any{"item": i},
			CreatedAt: now,
		}
	}
	if err := st.InsertUnits(ctx, task.ID, units); err != nil {
		t.Fatalf("insert units: %v", err)
	}
	return task, units
}

// addWeaver регистрирует воркера с заданными capabilities и LastSeen.
func addWeaver(t *testing.T, st *Store, lastSeen time.Time, caps ...string) *domain.Weaver {
	t.Helper()

	w := &domain.Weaver{
		ID:           uuid.New(),
		Address:      "localhost:9000",
		Capabilities: caps,
		RegisteredAt: lastSeen,
		LastSeen:     lastSeen,
	}
	if err := st.CreateWeaver(context.Background(), w); err != nil {
		t.Fatalf("create weaver: %v", err)
	}
	return w
}

// --- Task Tests ---

func TestCreateTask_Duplicate(t *testing.T) {
	st := New()
	ctx := context.Background()

	task := &domain.Task{ID: uuid.New(), Type: "echo", Status: domain.TaskStatusPending, CreatedAt: time.Now()}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateTask(ctx, task); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestListTasks_NewestFirst(t *testing.T) {
	st := New()
	first, _ := seedTask(t, st, "echo", 1)
	second, _ := seedTask(t, st, "echo", 1)

	tasks, err := st.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != second.ID || tasks[1].ID != first.ID {
		t.Error("tasks should come newest first")
	}
}

func TestListTasksByStatus_OldestFirstWithLimit(t *testing.T) {
	st := New()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		task := &domain.Task{ID: uuid.New(), Type: "echo", Status: domain.TaskStatusPending, CreatedAt: time.Now()}
		if err := st.CreateTask(ctx, task); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, task.ID)
	}

	tasks, err := st.ListTasksByStatus(ctx, domain.TaskStatusPending, 2)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("limit ignored: expected 2, got %d", len(tasks))
	}
	if tasks[0].ID != ids[0] || tasks[1].ID != ids[1] {
		t.Error("tasks should come oldest first")
	}
}

func TestInsertUnits_Validation(t *testing.T) {
	st := New()
	ctx := context.Background()

	task := &domain.Task{ID: uuid.New(), Type: "echo", Status: domain.TaskStatusPending, CreatedAt: time.Now()}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.MarkTaskDecomposing(ctx, task.ID); err != nil {
		t.Fatalf("mark decomposing: %v", err)
	}

	// Пустая декомпозиция — не задача без юнитов, а ошибка
	if err := st.InsertUnits(ctx, task.ID, nil); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("empty units: expected ErrInvalidState, got %v", err)
	}

	// Дырка в ordinal'ах
	gap := []*domain.WorkUnit{
		{ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 0, Status: domain.UnitStatusPending},
		{ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 2, Status: domain.UnitStatusPending},
	}
	if err := st.InsertUnits(ctx, task.ID, gap); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("ordinal gap: expected ErrInvalidState, got %v", err)
	}

	// Юнит чужой задачи
	alien := []*domain.WorkUnit{
		{ID: uuid.New(), TaskID: uuid.New(), TaskType: "echo", Ordinal: 0, Status: domain.UnitStatusPending},
	}
	if err := st.InsertUnits(ctx, task.ID, alien); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("foreign task id: expected ErrInvalidState, got %v", err)
	}

	// Валидация не испортила задачу: нормальная вставка проходит
	ok := []*domain.WorkUnit{
		{ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 0, Status: domain.UnitStatusPending},
	}
	if err := st.InsertUnits(ctx, task.ID, ok); err != nil {
		t.Fatalf("valid insert: %v", err)
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != domain.TaskStatusInProgress || got.UnitCount != 1 {
		t.Errorf("expected IN_PROGRESS with 1 unit, got %s/%d", got.Status, got.UnitCount)
	}

	// Повторная вставка в IN_PROGRESS отвергается
	if err := st.InsertUnits(ctx, task.ID, ok); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("double insert: expected ErrInvalidState, got %v", err)
	}
}

func TestBeginAggregation_RequiresAllCompleted(t *testing.T) {
	st := New()
	ctx := context.Background()
	task, units := seedTask(t, st, "echo", 2)
	w := addWeaver(t, st, time.Now(), "echo")

	// Завершён только один юнит из двух
	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := st.CompleteUnit(ctx, units[0].ID, w.ID, map[string]any{"ok": true}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := st.BeginAggregation(ctx, task.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("partial completion: expected ErrInvalidState, got %v", err)
	}

	// Задача не захвачена: статус остался IN_PROGRESS
	got, _ := st.GetTask(ctx, task.ID)
	if got.Status != domain.TaskStatusInProgress {
		t.Errorf("task status should stay IN_PROGRESS, got %s", got.Status)
	}

	// Добиваем второй юнит — агрегация захватывается ровно один раз
	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if _, err := st.CompleteUnit(ctx, units[1].ID, w.ID, map[string]any{"ok": true}); err != nil {
		t.Fatalf("complete 2: %v", err)
	}

	agg, err := st.BeginAggregation(ctx, task.ID)
	if err != nil {
		t.Fatalf("begin aggregation: %v", err)
	}
	if len(agg) != 2 || agg[0].Ordinal != 0 || agg[1].Ordinal != 1 {
		t.Errorf("aggregation units should come in ordinal order, got %d units", len(agg))
	}
	if _, err := st.BeginAggregation(ctx, task.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("second aggregation claim: expected ErrInvalidState, got %v", err)
	}

	if err := st.CompleteTask(ctx, task.ID, map[string]any{"done": true}); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	got, _ = st.GetTask(ctx, task.ID)
	if got.Status != domain.TaskStatusCompleted || got.FinishedAt == nil {
		t.Errorf("expected COMPLETED with finished_at, got %s", got.Status)
	}
}

func TestCompleteTask_RequiresAggregating(t *testing.T) {
	st := New()
	task, _ := seedTask(t, st, "echo", 1)

	err := st.CompleteTask(context.Background(), task.ID, map[string]any{})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for IN_PROGRESS task, got %v", err)
	}
}

func TestFailTask_TerminalIsImmutable(t *testing.T) {
	st := New()
	ctx := context.Background()
	task, _ := seedTask(t, st, "echo", 1)

	if err := st.FailTask(ctx, task.ID, "first reason"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := st.FailTask(ctx, task.ID, "second reason"); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for already failed task, got %v", err)
	}

	got, _ := st.GetTask(ctx, task.ID)
	if got.FailureReason != "first reason" {
		t.Errorf("failure reason overwritten: %s", got.FailureReason)
	}
}

// --- Claim Tests ---

func TestClaimUnit_FIFOByTaskThenOrdinal(t *testing.T) {
	st := New()
	ctx := context.Background()

	older, olderUnits := seedTask(t, st, "echo", 2)
	newer, newerUnits := seedTask(t, st, "echo", 2)
	w := addWeaver(t, st, time.Now(), "echo")

	want := []uuid.UUID{olderUnits[0].ID, olderUnits[1].ID, newerUnits[0].ID, newerUnits[1].ID}
	for i, wantID := range want {
		unit, redelivered, err := st.ClaimUnit(ctx, w.ID, nil)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if redelivered {
			t.Fatalf("claim %d: unexpected redelivery", i)
		}
		if unit.ID != wantID {
			t.Fatalf("claim %d: expected unit %s, got %s (task order %s → %s)",
				i, wantID, unit.ID, older.ID, newer.ID)
		}
		if _, err := st.CompleteUnit(ctx, unit.ID, w.ID, map[string]any{}); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
	}

	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); !errors.Is(err, store.ErrNoWork) {
		t.Errorf("expected ErrNoWork after draining, got %v", err)
	}
}

func TestClaimUnit_CapabilityFilter(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedTask(t, st, "echo", 1)

	// Зарегистрированные capabilities не подходят
	w := addWeaver(t, st, time.Now(), "sleep")
	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); !errors.Is(err, store.ErrNoWork) {
		t.Errorf("expected ErrNoWork for non-matching capabilities, got %v", err)
	}

	// Capabilities из запроса авторитетны и перекрывают регистрацию
	unit, _, err := st.ClaimUnit(ctx, w.ID, []string{"echo"})
	if err != nil {
		t.Fatalf("claim with explicit capabilities: %v", err)
	}
	if unit.TaskType != "echo" {
		t.Errorf("expected echo unit, got %s", unit.TaskType)
	}
}

func TestClaimUnit_NoWorkTouchesLastSeen(t *testing.T) {
	st := New()
	ctx := context.Background()

	staleSeen := time.Now().Add(-time.Hour)
	w := addWeaver(t, st, staleSeen, "echo")

	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); !errors.Is(err, store.ErrNoWork) {
		t.Fatalf("expected ErrNoWork, got %v", err)
	}

	// Пустой poll — тоже признак жизни
	got, err := st.GetWeaver(ctx, w.ID)
	if err != nil {
		t.Fatalf("get weaver: %v", err)
	}
	if !got.LastSeen.After(staleSeen) {
		t.Error("empty poll should update last_seen")
	}
}

func TestClaimUnit_RedeliversCurrentAssignment(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, units := seedTask(t, st, "echo", 2)
	w := addWeaver(t, st, time.Now(), "echo")

	first, _, err := st.ClaimUnit(ctx, w.ID, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Повторный poll без отчёта возвращает тот же юнит, а не второй
	again, redelivered, err := st.ClaimUnit(ctx, w.ID, nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !redelivered {
		t.Error("expected redelivered=true")
	}
	if again.ID != first.ID {
		t.Errorf("expected unit %s redelivered, got %s", first.ID, again.ID)
	}

	// Второй юнит остался PENDING
	u1, _ := st.GetUnit(ctx, units[1].ID)
	if u1.Status != domain.UnitStatusPending {
		t.Errorf("second unit should stay PENDING, got %s", u1.Status)
	}
}

func TestClaimUnit_UnknownWeaver(t *testing.T) {
	st := New()
	seedTask(t, st, "echo", 1)

	if _, _, err := st.ClaimUnit(context.Background(), uuid.New(), nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimUnit_SkipsFailedTask(t *testing.T) {
	st := New()
	ctx := context.Background()

	// Первая (приоритетная по FIFO) задача провалена — её PENDING-юниты
	// не раздаются
	failed, _ := seedTask(t, st, "echo", 2)
	if err := st.FailTask(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("fail task: %v", err)
	}
	_, liveUnits := seedTask(t, st, "echo", 1)

	w := addWeaver(t, st, time.Now(), "echo")
	unit, _, err := st.ClaimUnit(ctx, w.ID, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if unit.ID != liveUnits[0].ID {
		t.Errorf("expected unit of live task, got unit of task %s", unit.TaskID)
	}
}

func TestClaimUnit_Race(t *testing.T) {
	st := New()
	ctx := context.Background()

	const tasks = 5
	const unitsPerTask = 4
	total := tasks * unitsPerTask
	for i := 0; i < tasks; i++ {
		seedTask(t, st, "echo", unitsPerTask)
	}

	const weavers = 8
	var (
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
		done    int
	)

	var wg sync.WaitGroup
	for i := 0; i < weavers; i++ {
		w := addWeaver(t, st, time.Now(), "echo")
		wg.Add(1)
		go func(weaverID uuid.UUID) {
			defer wg.Done()
			for {
				unit, redelivered, err := st.ClaimUnit(ctx, weaverID, nil)
				if errors.Is(err, store.ErrNoWork) {
					mu.Lock()
					finished := done >= total
					mu.Unlock()
					if finished {
						return
					}
					continue
				}
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if redelivered {
					t.Errorf("unexpected redelivery of %s", unit.ID)
					return
				}

				mu.Lock()
				claimed[unit.ID]++
				mu.Unlock()

				if _, err := st.CompleteUnit(ctx, unit.ID, weaverID, map[string]any{}); err != nil {
					t.Errorf("complete: %v", err)
					return
				}
				mu.Lock()
				done++
				mu.Unlock()
			}
		}(w.ID)
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("expected %d distinct units claimed, got %d", total, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("unit %s claimed %d times", id, n)
		}
	}

	// Ни у одного воркера не осталось назначения
	weaverList, _ := st.ListWeavers(ctx)
	for _, w := range weaverList {
		if w.CurrentUnit != nil {
			t.Errorf("weaver %s still holds unit %s", w.ID, *w.CurrentUnit)
		}
	}
}

// --- Report Tests ---

func TestCompleteUnit_WrongWeaver(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, units := seedTask(t, st, "echo", 1)

	assignee := addWeaver(t, st, time.Now(), "echo")
	intruder := addWeaver(t, st, time.Now(), "echo")

	if _, _, err := st.ClaimUnit(ctx, assignee.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err := st.CompleteUnit(ctx, units[0].ID, intruder.ID, map[string]any{})
	if !errors.Is(err, store.ErrAssignmentMismatch) {
		t.Fatalf("expected ErrAssignmentMismatch, got %v", err)
	}

	// Назначение настоящего исполнителя не тронуто
	u, _ := st.GetUnit(ctx, units[0].ID)
	if u.Status != domain.UnitStatusAssigned || u.AssignedWeaver == nil || *u.AssignedWeaver != assignee.ID {
		t.Error("assignment should survive a stale report")
	}
	w, _ := st.GetWeaver(ctx, assignee.ID)
	if w.CurrentUnit == nil || *w.CurrentUnit != units[0].ID {
		t.Error("assignee current_unit should survive a stale report")
	}
}

func TestCompleteUnit_ClearsAssignment(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, units := seedTask(t, st, "echo", 1)
	w := addWeaver(t, st, time.Now(), "echo")

	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	result := map[string]any{"echoed": "x"}
	unit, err := st.CompleteUnit(ctx, units[0].ID, w.ID, result)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if unit.Status != domain.UnitStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", unit.Status)
	}
	if unit.AssignedWeaver != nil || unit.AssignedAt != nil {
		t.Error("completed unit should drop assignment fields")
	}

	got, _ := st.GetWeaver(ctx, w.ID)
	if got.CurrentUnit != nil {
		t.Error("weaver should become idle after report")
	}
}

func TestFailUnitAttempt_RetryThenExhausted(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, units := seedTask(t, st, "echo", 1)
	w := addWeaver(t, st, time.Now(), "echo")
	const maxRetries = 1

	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Первый провал: бюджет ещё есть — юнит возвращается в очередь
	unit, err := st.FailUnitAttempt(ctx, units[0].ID, w.ID, "first failure", maxRetries)
	if err != nil {
		t.Fatalf("fail attempt 1: %v", err)
	}
	if unit.Status != domain.UnitStatusPending || unit.RetryCount != 1 {
		t.Fatalf("expected PENDING retry_count=1, got %s retry_count=%d", unit.Status, unit.RetryCount)
	}
	if unit.Error != "first failure" {
		t.Errorf("error text not recorded: %q", unit.Error)
	}
	if got, _ := st.GetWeaver(ctx, w.ID); got.CurrentUnit != nil {
		t.Error("weaver should be idle after failed report")
	}

	// Переназначение и второй провал: бюджет исчерпан
	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	unit, err = st.FailUnitAttempt(ctx, units[0].ID, w.ID, "second failure", maxRetries)
	if err != nil {
		t.Fatalf("fail attempt 2: %v", err)
	}
	if unit.Status != domain.UnitStatusFailed {
		t.Fatalf("expected FAILED after exhausting retries, got %s", unit.Status)
	}
	if unit.Error != "second failure" {
		t.Errorf("error text not updated: %q", unit.Error)
	}
}

func TestFailUnitAttempt_Unassigned(t *testing.T) {
	st := New()
	_, units := seedTask(t, st, "echo", 1)
	w := addWeaver(t, st, time.Now(), "echo")

	// Юнит никому не назначен — отчёт не принимается
	_, err := st.FailUnitAttempt(context.Background(), units[0].ID, w.ID, "boom", 2)
	if !errors.Is(err, store.ErrAssignmentMismatch) {
		t.Errorf("expected ErrAssignmentMismatch, got %v", err)
	}
}

// --- Purge Tests ---

func TestPurgeWeavers_RemovesStaleIdle(t *testing.T) {
	st := New()
	ctx := context.Background()

	stale := addWeaver(t, st, time.Now().Add(-time.Hour), "echo")
	fresh := addWeaver(t, st, time.Now(), "echo")

	res, err := st.PurgeWeavers(ctx, time.Now().Add(-time.Minute), time.Now(), 2)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(res.Purged) != 1 || res.Purged[0].ID != stale.ID {
		t.Fatalf("expected exactly the stale weaver purged, got %d", len(res.Purged))
	}

	if _, err := st.GetWeaver(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("purged weaver should be gone, got %v", err)
	}
	if _, err := st.GetWeaver(ctx, fresh.ID); err != nil {
		t.Errorf("fresh weaver should survive: %v", err)
	}
	if err := st.TouchWeaver(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("heartbeat of purged weaver should get ErrNotFound, got %v", err)
	}
}

func TestPurgeWeavers_RequeuesAssignedUnit(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, units := seedTask(t, st, "echo", 1)
	w := addWeaver(t, st, time.Now(), "echo")

	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Claim обновил last_seen, поэтому cutoff и cycleStart сдвигаются в
	// будущее — тест не спит
	future := time.Now().Add(time.Second)
	res, err := st.PurgeWeavers(ctx, future, future, 2)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(res.Purged) != 1 || len(res.Requeued) != 1 {
		t.Fatalf("expected 1 purged + 1 requeued, got %d/%d", len(res.Purged), len(res.Requeued))
	}

	unit, _ := st.GetUnit(ctx, units[0].ID)
	if unit.Status != domain.UnitStatusPending || unit.RetryCount != 1 {
		t.Errorf("expected PENDING retry_count=1, got %s retry_count=%d", unit.Status, unit.RetryCount)
	}
	if unit.Error != "assigned weaver purged" {
		t.Errorf("unexpected error text: %q", unit.Error)
	}
	if _, err := st.GetWeaver(ctx, w.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("weaver should be gone, got %v", err)
	}
}

func TestPurgeWeavers_ExhaustedUnitFails(t *testing.T) {
	st := New()
	ctx := context.Background()

	// Юнит уже дважды возвращался в очередь — retry-бюджет исчерпан
	task := &domain.Task{ID: uuid.New(), Type: "echo", Status: domain.TaskStatusPending, CreatedAt: time.Now()}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := st.MarkTaskDecomposing(ctx, task.ID); err != nil {
		t.Fatalf("mark decomposing: %v", err)
	}
	unit := &domain.WorkUnit{
		ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 0,
		Status: domain.UnitStatusPending, RetryCount: 2, CreatedAt: time.Now(),
	}
	if err := st.InsertUnits(ctx, task.ID, []*domain.WorkUnit{unit}); err != nil {
		t.Fatalf("insert units: %v", err)
	}

	w := addWeaver(t, st, time.Now(), "echo")
	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	future := time.Now().Add(time.Second)
	res, err := st.PurgeWeavers(ctx, future, future, 2)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(res.Exhausted) != 1 || len(res.Requeued) != 0 {
		t.Fatalf("expected 1 exhausted + 0 requeued, got %d/%d", len(res.Exhausted), len(res.Requeued))
	}

	got, _ := st.GetUnit(ctx, unit.ID)
	if got.Status != domain.UnitStatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
}

func TestPurgeWeavers_SkipsFreshAssignment(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, units := seedTask(t, st, "echo", 1)
	w := addWeaver(t, st, time.Now(), "echo")

	if _, _, err := st.ClaimUnit(ctx, w.ID, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Воркер выглядит молчащим (cutoff в будущем), но назначение моложе
	// cycleStart — цикл его не трогает
	cutoff := time.Now().Add(time.Minute)
	cycleStart := time.Now().Add(-time.Minute)
	res, err := st.PurgeWeavers(ctx, cutoff, cycleStart, 2)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(res.Purged) != 0 {
		t.Fatalf("fresh assignment should protect the weaver, purged %d", len(res.Purged))
	}

	unit, _ := st.GetUnit(ctx, units[0].ID)
	if unit.Status != domain.UnitStatusAssigned {
		t.Errorf("assignment should be intact, got %s", unit.Status)
	}
	if _, err := st.GetWeaver(ctx, w.ID); err != nil {
		t.Errorf("weaver should survive: %v", err)
	}
}

// --- Schedule Tests ---

func TestScheduleLifecycle(t *testing.T) {
	st := New()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	now := time.Now()

	due := &domain.Schedule{
		ID: uuid.New(), Name: "due", TaskType: "echo", IntervalSec: 60,
		Timezone: "UTC", Enabled: true, NextDueAt: &past, CreatedAt: now, UpdatedAt: now,
	}
	disabled := &domain.Schedule{
		ID: uuid.New(), Name: "disabled", TaskType: "echo", IntervalSec: 60,
		Timezone: "UTC", Enabled: false, NextDueAt: &past, CreatedAt: now, UpdatedAt: now,
	}
	later := &domain.Schedule{
		ID: uuid.New(), Name: "later", TaskType: "echo", IntervalSec: 60,
		Timezone: "UTC", Enabled: true, NextDueAt: &future, CreatedAt: now, UpdatedAt: now,
	}
	for _, s := range []*domain.Schedule{due, disabled, later} {
		if err := st.CreateSchedule(ctx, s); err != nil {
			t.Fatalf("create schedule: %v", err)
		}
	}

	// Срабатывают только включённые с наступившим next_due_at
	dueList, err := st.ListDueSchedules(ctx, time.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(dueList) != 1 || dueList[0].ID != due.ID {
		t.Fatalf("expected exactly the due schedule, got %d", len(dueList))
	}

	// Update заменяет запись целиком
	due.Enabled = false
	if err := st.UpdateSchedule(ctx, due); err != nil {
		t.Fatalf("update: %v", err)
	}
	dueList, _ = st.ListDueSchedules(ctx, time.Now())
	if len(dueList) != 0 {
		t.Errorf("disabled schedule should not be due, got %d", len(dueList))
	}

	if err := st.DeleteSchedule(ctx, due.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetSchedule(ctx, due.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted schedule should be gone, got %v", err)
	}
	if err := st.UpdateSchedule(ctx, due); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update of deleted schedule should get ErrNotFound, got %v", err)
	}
}

func TestScheduleLifecycle_UnknownID(t *testing.T) {
	st := New()
	ctx := context.Background()

	if _, err := st.GetSchedule(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get: expected ErrNotFound, got %v", err)
	}
	if err := st.DeleteSchedule(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("delete: expected ErrNotFound, got %v", err)
	}
}

// Юниты попадают в список строго в порядке ordinal независимо от порядка
// вставки.
func TestListUnitsByTask_OrdinalOrder(t *testing.T) {
	st := New()
	ctx := context.Background()

	task := &domain.Task{ID: uuid.New(), Type: "echo", Status: domain.TaskStatusPending, CreatedAt: time.Now()}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.MarkTaskDecomposing(ctx, task.ID); err != nil {
		t.Fatalf("mark decomposing: %v", err)
	}

	// Вставляем в перемешанном порядке
	shuffled := []*domain.WorkUnit{
		{ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 2, Status: domain.UnitStatusPending},
		{ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 0, Status: domain.UnitStatusPending},
		{ID: uuid.New(), TaskID: task.ID, TaskType: "echo", Ordinal: 1, Status: domain.UnitStatusPending},
	}
	if err := st.InsertUnits(ctx, task.ID, shuffled); err != nil {
		t.Fatalf("insert: %v", err)
	}

	units, err := st.ListUnitsByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, u := range units {
		if u.Ordinal != i {
			t.Fatalf("position %d holds ordinal %d", i, u.Ordinal)
		}
	}

	if _, err := st.ListUnitsByTask(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown task: expected ErrNotFound, got %v", err)
	}
}
