package scheduler

import (
	"testing"
	"time"

	"github.com/avetta/conveyor/internal/domain"
)

func TestCalculateNextDue_Cron(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "0 * * * *", // каждый час в :00
		Timezone: "UTC",
	}

	from := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 27, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_CronWithTimezone(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "0 9 * * *", // 09:00 по Нью-Йорку
		Timezone: "America/New_York",
	}

	// 27 августа 2026, 10:00 UTC = 06:00 EDT → следующий запуск 09:00 EDT = 13:00 UTC
	from := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 27, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if next.Location() != time.UTC {
		t.Errorf("result must be in UTC for storage, got %v", next.Location())
	}
}

func TestCalculateNextDue_Interval(t *testing.T) {
	sched := &domain.Schedule{
		IntervalSec: 300,
		Timezone:    "UTC",
	}

	from := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := from.Add(5 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	sched := &domain.Schedule{
		IntervalSec: 60,
		Timezone:    "Mars/Olympus_Mons",
	}

	from := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("invalid timezone must fall back, got error: %v", err)
	}
	if !next.Equal(from.Add(time.Minute)) {
		t.Errorf("expected %v, got %v", from.Add(time.Minute), next)
	}
}

func TestCalculateNextDue_NeitherCronNorInterval(t *testing.T) {
	sched := &domain.Schedule{Timezone: "UTC"}

	if _, err := CalculateNextDue(sched, time.Now()); err == nil {
		t.Fatal("expected error for schedule without cron_expr and interval_sec")
	}
}

func TestCalculateNextDue_CronTakesPrecedence(t *testing.T) {
	// При заданных обоих полях используется cron
	sched := &domain.Schedule{
		CronExpr:    "0 0 * * *",
		IntervalSec: 60,
		Timezone:    "UTC",
	}

	from := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected cron result %v, got %v", want, next)
	}
}

func TestValidateCronExpr(t *testing.T) {
	valid := []string{
		"* * * * *",
		"0 9 * * 1-5",
		"*/15 * * * *",
	}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("%q should be valid: %v", expr, err)
		}
	}

	invalid := []string{
		"",
		"not a cron",
		"61 * * * *",
		"* * * *", // 4 поля
	}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("%q should be invalid", expr)
		}
	}
}
