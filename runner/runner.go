// Package runner executes a single command invocation as an isolated process.
//
// The runner never interprets what the command does. It spawns the literal argv,
// waits, and records timing, exit status, and a bounded slice of the combined
// stdout/stderr. Classifying an invocation as success or failure is a runner
// policy: exit code zero by default, overridable for commands that intentionally
// probe error responses.
package runner

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"loadflare/log"
)

// ErrorKind classifies why an invocation did not succeed.
type ErrorKind int

const (
	// KindNone means the invocation succeeded.
	KindNone ErrorKind = iota
	// KindSpawn means the process could not be started.
	KindSpawn
	// KindExit means the process ran and its exit code failed the success policy.
	KindExit
	// KindTimeout means the invocation exceeded the configured timeout.
	KindTimeout
	// KindCancelled means the run was aborted before the invocation finished.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSpawn:
		return "spawn error"
	case KindExit:
		return "exit error"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Invocation is the outcome of executing one task. Exactly one is produced per
// task; the dispatcher fabricates one with KindCancelled for tasks an aborted
// run never started.
type Invocation struct {
	StartTime time.Time
	Duration  time.Duration
	// ExitCode is the process exit code, or -1 when the process never ran
	// or was killed before exiting on its own.
	ExitCode  int
	Success   bool
	Kind      ErrorKind
	Output    []byte
	Truncated bool
}

// DefaultOutputCap bounds the captured stdout/stderr per invocation.
const DefaultOutputCap = 16 * 1024

// Runner executes invocations with a fixed policy. The zero value runs with no
// timeout, the default output cap, and the exit-code-zero success policy.
type Runner struct {
	// Timeout bounds a single invocation. Zero means unbounded.
	Timeout time.Duration
	// OutputCap bounds captured output in bytes. Zero means DefaultOutputCap.
	OutputCap int
	// Success decides whether an exit code counts as success. Nil means code == 0.
	Success func(exitCode int) bool
}

// Run executes argv once and reports the outcome. It never returns an error:
// every failure mode is data on the Invocation. The context is the kill switch
// for the whole run; cancelling it terminates the process group.
func (r *Runner) Run(ctx context.Context, argv []string) Invocation {
	inv := Invocation{StartTime: time.Now(), ExitCode: -1}
	if len(argv) == 0 {
		inv.Kind = KindSpawn
		return inv
	}
	begin := time.Now() // monotonic

	invCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		invCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	buf := newCapBuffer(r.outputCap())
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = buf
	cmd.Stderr = buf
	// Own process group so the whole child tree dies on termination.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		inv.Duration = time.Since(begin)
		inv.Kind = KindSpawn
		inv.Output, inv.Truncated = buf.Contents()
		log.ErrorLog.Printf("failed to start %s: %v", log.SanitizeArgs(argv), err)
		return inv
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-invCtx.Done():
		// Kill the process group (negative pid) and reap the process.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		inv.Duration = time.Since(begin)
		inv.Output, inv.Truncated = buf.Contents()
		if ctx.Err() != nil {
			inv.Kind = KindCancelled
		} else {
			inv.Kind = KindTimeout
		}
		return inv
	case waitErr = <-done:
	}

	inv.Duration = time.Since(begin)
	inv.Output, inv.Truncated = buf.Contents()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Wait itself failed; treat like a spawn-level fault.
			inv.Kind = KindSpawn
			log.ErrorLog.Printf("wait failed for %s: %v", log.SanitizeArgs(argv), waitErr)
			return inv
		}
	}

	inv.ExitCode = exitCode
	if r.success(exitCode) {
		inv.Success = true
		inv.Kind = KindNone
	} else {
		inv.Kind = KindExit
	}
	return inv
}

func (r *Runner) outputCap() int {
	if r.OutputCap > 0 {
		return r.OutputCap
	}
	return DefaultOutputCap
}

func (r *Runner) success(exitCode int) bool {
	if r.Success != nil {
		return r.Success(exitCode)
	}
	return exitCode == 0
}
