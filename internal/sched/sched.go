// Package sched implements the single-threaded cooperative task scheduler
// (spec.md §4.9), grounded on original_source/kernel/src/lib.rs's
// spawn/run_scheduler, generalized from its 4-slot array to an
// 8-slot capacity and given an exported, testable Step instead of only an
// infinite run_scheduler loop.
package sched

import "github.com/gfpw/microkernelia/internal/layout"

// logTaskName is immortal: run_scheduler never marks it finished, since it
// represents the log-drain task that must keep running every round.
const logTaskName = "log_task"

// Task is one scheduled entry point. Entry returning means the task yielded
// (for log_task, which is re-entered every round) or completed (every other
// task, including the control task, is never called again).
type Task struct {
	Entry    func()
	Name     string
	finished bool
	used     bool
}

// Scheduler owns the fixed-capacity slot table.
type Scheduler struct {
	tasks [layout.MaxTasks]Task
}

// Spawn claims the first empty slot for entry/name. ok is false if the
// table is full.
func (s *Scheduler) Spawn(entry func(), name string) bool {
	for i := range s.tasks {
		if !s.tasks[i].used {
			s.tasks[i] = Task{Entry: entry, Name: name, used: true}
			return true
		}
	}
	return false
}

// Step runs one round: every non-empty, non-finished slot's Entry is called
// once, in slot order, and marked finished afterward unless its name is
// log_task. It is exported (rather than folded into an infinite loop) so
// boot code and tests can drive it deterministically.
func (s *Scheduler) Step() {
	for i := range s.tasks {
		t := &s.tasks[i]
		if !t.used || t.finished {
			continue
		}
		t.Entry()
		if t.Name != logTaskName {
			t.finished = true
		}
	}
}

// Run calls Step forever. This is what cmd/unikernel's boot sequence
// invokes; it never returns.
func (s *Scheduler) Run() {
	for {
		s.Step()
	}
}

// ActiveCount reports how many slots are currently occupied (used and not
// finished), for diagnostics.
func (s *Scheduler) ActiveCount() int {
	n := 0
	for i := range s.tasks {
		if s.tasks[i].used && !s.tasks[i].finished {
			n++
		}
	}
	return n
}
