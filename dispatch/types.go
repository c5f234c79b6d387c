// Package dispatch schedules command invocations through a strictly bounded
// worker pool. It resolves per-command repeat counts, expands them into a
// deterministic round-robin task queue, and dispatches the queue to a fixed
// number of workers, producing exactly one result per task.
package dispatch

import (
	"loadflare/runner"
)

// CommandInput is one command as handed over by the parsing layer: a template
// argv plus an optional repeat override extracted from the raw string.
type CommandInput struct {
	// Raw is the command as the user typed it, kept for labels and logs.
	Raw string
	// Argv is the fully extracted template. It is never re-parsed.
	Argv []string
	// Override is the per-command repeat count, nil to use the global default.
	Override *int
}

// CommandSpec is a command with its final repeat count. Specs are created once
// by Resolve and immutable afterwards.
type CommandSpec struct {
	Raw           string
	Argv          []string
	ResolvedCount int
}

// Task is one scheduled repeat of one command. Identity is the
// (CommandIndex, Sequence) pair; QueueIndex is the task's fixed position in
// the built queue and doubles as the exactly-once accounting slot.
type Task struct {
	CommandIndex int
	Sequence     int
	QueueIndex   int
	Argv         []string
}

// Result pairs a task with the outcome of its single invocation.
type Result struct {
	Task       Task
	Invocation runner.Invocation
}

// Sink receives results as workers complete them, in arbitrary order. Record
// must be safe for concurrent use and reject duplicates.
type Sink interface {
	Record(Result) error
}
