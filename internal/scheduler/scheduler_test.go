package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store/memory"
)

// fakeSubmitter записывает поданные задачи.
type fakeSubmitter struct {
	calls []string // типы поданных задач
	err   error
}

func (f *fakeSubmitter) SubmitTask(ctx context.Context, taskType string, payload map[string]any) (*domain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, taskType)
	return &domain.Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    domain.TaskStatusPending,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

func newTestScheduler(t *testing.T, submitter Submitter) (*Scheduler, *memory.Store) {
	t.Helper()

	st := memory.New()
	sched := New(Config{
		Store:     st,
		Submitter: submitter,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return sched, st
}

// addSchedule кладёт расписание в store.
func addSchedule(t *testing.T, st *memory.Store, s *domain.Schedule) {
	t.Helper()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if err := st.CreateSchedule(context.Background(), s); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
}

// --- Tick Tests ---

func TestTick_SubmitsDueSchedule(t *testing.T) {
	submitter := &fakeSubmitter{}
	sched, st := newTestScheduler(t, submitter)

	past := time.Now().Add(-time.Minute)
	schedule := &domain.Schedule{
		Name:        "every-minute",
		TaskType:    "echo",
		Payload:     map[string]any{"items": []any{1}},
		IntervalSec: 60,
		Enabled:     true,
		NextDueAt:   &past,
	}
	addSchedule(t, st, schedule)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(submitter.calls) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submitter.calls))
	}
	if submitter.calls[0] != "echo" {
		t.Errorf("expected echo submission, got %s", submitter.calls[0])
	}

	// Schedule обновлён: next_due_at сдвинут вперёд, подача записана
	updated, err := st.GetSchedule(context.Background(), schedule.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if updated.NextDueAt == nil || !updated.NextDueAt.After(time.Now()) {
		t.Errorf("next_due_at should move to the future, got %v", updated.NextDueAt)
	}
	if updated.LastTaskID == nil {
		t.Error("last_task_id should be recorded")
	}
	if updated.LastSubmitAt == nil {
		t.Error("last_submit_at should be recorded")
	}
}

func TestTick_SkipsDisabled(t *testing.T) {
	submitter := &fakeSubmitter{}
	sched, st := newTestScheduler(t, submitter)

	past := time.Now().Add(-time.Minute)
	addSchedule(t, st, &domain.Schedule{
		Name:        "disabled",
		TaskType:    "echo",
		IntervalSec: 60,
		Enabled:     false,
		NextDueAt:   &past,
	})

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Errorf("disabled schedule should not submit, got %d calls", len(submitter.calls))
	}
}

func TestTick_SkipsNotDue(t *testing.T) {
	submitter := &fakeSubmitter{}
	sched, st := newTestScheduler(t, submitter)

	future := time.Now().Add(time.Hour)
	addSchedule(t, st, &domain.Schedule{
		Name:        "later",
		TaskType:    "echo",
		IntervalSec: 3600,
		Enabled:     true,
		NextDueAt:   &future,
	})

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Errorf("future schedule should not submit, got %d calls", len(submitter.calls))
	}
}

func TestTick_SubmitErrorKeepsNextDue(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.New("submit broken")}
	sched, st := newTestScheduler(t, submitter)

	past := time.Now().Add(-time.Minute)
	schedule := &domain.Schedule{
		Name:        "failing",
		TaskType:    "echo",
		IntervalSec: 60,
		Enabled:     true,
		NextDueAt:   &past,
	}
	addSchedule(t, st, schedule)

	// Ошибка одного schedule не валит тик
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick should not fail: %v", err)
	}

	// next_due_at не сдвинут: подача повторится на следующем тике
	updated, err := st.GetSchedule(context.Background(), schedule.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if updated.NextDueAt == nil || !updated.NextDueAt.Equal(past) {
		t.Errorf("next_due_at should stay at %v, got %v", past, updated.NextDueAt)
	}
}

func TestTick_MultipleDue(t *testing.T) {
	submitter := &fakeSubmitter{}
	sched, st := newTestScheduler(t, submitter)

	past := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		due := past
		addSchedule(t, st, &domain.Schedule{
			Name:        "batch",
			TaskType:    "echo",
			IntervalSec: 60,
			Enabled:     true,
			NextDueAt:   &due,
		})
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(submitter.calls) != 3 {
		t.Errorf("expected 3 submissions, got %d", len(submitter.calls))
	}
}

// --- CalculateNextDue Tests ---

func TestCalculateNextDue_Interval(t *testing.T) {
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	schedule := &domain.Schedule{IntervalSec: 90, Timezone: "UTC"}

	next, err := CalculateNextDue(schedule, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := from.Add(90 * time.Second)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_Cron(t *testing.T) {
	// Каждый день в 9:00; из 12:00 следующее срабатывание — завтра в 9:00
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	schedule := &domain.Schedule{CronExpr: "0 9 * * *", Timezone: "UTC"}

	next, err := CalculateNextDue(schedule, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_CronBeatsInterval(t *testing.T) {
	// Если задан cron, interval игнорируется
	from := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	schedule := &domain.Schedule{CronExpr: "0 9 * * *", IntervalSec: 10, Timezone: "UTC"}

	next, err := CalculateNextDue(schedule, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_InvalidTimezone(t *testing.T) {
	// Невалидный timezone откатывается на UTC вместо ошибки
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	schedule := &domain.Schedule{IntervalSec: 60, Timezone: "Not/AZone"}

	next, err := CalculateNextDue(schedule, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(from.Add(time.Minute)) {
		t.Errorf("expected fallback to UTC math, got %v", next)
	}
}

func TestCalculateNextDue_NeitherCronNorInterval(t *testing.T) {
	schedule := &domain.Schedule{Timezone: "UTC"}

	if _, err := CalculateNextDue(schedule, time.Now()); err == nil {
		t.Error("expected error for schedule without cron and interval")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("61 * * * *"); err == nil {
		t.Error("invalid expression accepted")
	}
}
