package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Neuroweave/internal/domain"
)

// cronParser разбирает стандартные пятипольные cron-выражения
// (минута час день-месяца месяц день-недели).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее срабатывание расписания после from.
//
// Cron-выражение имеет приоритет над интервалом; cron считается в timezone
// расписания, интервал — чистая арифметика от from. Результат нормализуется
// в UTC для хранения. Невалидный timezone откатывается на UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		loc = time.UTC
	}

	switch {
	case sched.IsCron():
		expr, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
		}
		return expr.Next(from.In(loc)).UTC(), nil

	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("schedule has neither cron_expr nor interval_sec")
	}
}

// CalculateInitialNextDue вычисляет первое срабатывание нового расписания.
func CalculateInitialNextDue(sched *domain.Schedule) (time.Time, error) {
	return CalculateNextDue(sched, time.Now())
}

// ValidateCronExpr проверяет синтаксис cron-выражения, не вычисляя время.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
