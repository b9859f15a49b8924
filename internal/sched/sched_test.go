package sched

import (
	"testing"

	"github.com/gfpw/microkernelia/internal/layout"
)

func TestSpawnAndStepMarksOneShotTaskFinished(t *testing.T) {
	var s Scheduler
	calls := 0
	s.Spawn(func() { calls++ }, "selftest")

	s.Step()
	s.Step()

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (task should finish after first Step)", calls)
	}
}

func TestLogTaskIsImmortal(t *testing.T) {
	var s Scheduler
	calls := 0
	s.Spawn(func() { calls++ }, "log_task")

	for i := 0; i < 5; i++ {
		s.Step()
	}

	if calls != 5 {
		t.Fatalf("calls = %d, want 5 (log_task must run every Step)", calls)
	}
}

func TestSpawnFailsWhenTableFull(t *testing.T) {
	var s Scheduler
	for i := 0; i < layout.MaxTasks; i++ {
		if !s.Spawn(func() {}, "t") {
			t.Fatalf("spawn %d unexpectedly failed", i)
		}
	}
	if s.Spawn(func() {}, "overflow") {
		t.Fatal("expected spawn to fail once the table is full")
	}
}

func TestActiveCountDecreasesAsOneShotTasksFinish(t *testing.T) {
	var s Scheduler
	s.Spawn(func() {}, "a")
	s.Spawn(func() {}, "b")
	s.Spawn(func() {}, "log_task")

	if got := s.ActiveCount(); got != 3 {
		t.Fatalf("ActiveCount() = %d, want 3", got)
	}
	s.Step()
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() after one Step = %d, want 1 (only log_task survives)", got)
	}
}

func TestTasksRunInSlotOrder(t *testing.T) {
	var s Scheduler
	var order []string
	s.Spawn(func() { order = append(order, "first") }, "first")
	s.Spawn(func() { order = append(order, "second") }, "second")

	s.Step()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}
