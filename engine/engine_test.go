package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadflare/dispatch"
	"loadflare/log"
	"loadflare/runner"
)

func TestMain(m *testing.M) {
	log.Initialize()
	defer log.Close()
	os.Exit(m.Run())
}

func command(raw string, argv ...string) dispatch.CommandInput {
	return dispatch.CommandInput{Raw: raw, Argv: argv}
}

func TestEngine_AllSucceed(t *testing.T) {
	n := 5
	eng, err := New(Options{
		Commands: []dispatch.CommandInput{
			{Raw: "true", Argv: []string{"true"}, Override: &n},
		},
		DefaultRequests: 1,
		Concurrency:     2,
	})
	require.NoError(t, err)
	require.Equal(t, 5, eng.TaskCount())

	require.NoError(t, eng.Run(context.Background()))

	snap := eng.Stats().Snapshot()
	assert.Equal(t, 5, snap.Global.Total)
	assert.Equal(t, 5, snap.Global.Succeeded)
	assert.Equal(t, 0, snap.Global.Failed)
	assert.True(t, snap.Done())

	for _, res := range eng.Stats().Results() {
		assert.True(t, res.Invocation.Success)
		assert.Equal(t, runner.KindNone, res.Invocation.Kind)
	}
}

func TestEngine_AllFail(t *testing.T) {
	n := 3
	eng, err := New(Options{
		Commands: []dispatch.CommandInput{
			{Raw: "false", Argv: []string{"false"}, Override: &n},
		},
		DefaultRequests: 1,
		Concurrency:     2,
	})
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background()))

	snap := eng.Stats().Snapshot()
	assert.Equal(t, 3, snap.Global.Total)
	assert.Equal(t, 0, snap.Global.Succeeded)
	assert.Equal(t, 3, snap.Global.Failed)

	for _, res := range eng.Stats().Results() {
		assert.Equal(t, runner.KindExit, res.Invocation.Kind)
		assert.Equal(t, 1, res.Invocation.ExitCode)
	}
}

func TestEngine_MultiCommand(t *testing.T) {
	a, b := 10, 3
	eng, err := New(Options{
		Commands: []dispatch.CommandInput{
			{Raw: "A", Argv: []string{"true"}, Override: &a},
			{Raw: "B", Argv: []string{"true"}, Override: &b},
		},
		DefaultRequests: 1,
		Concurrency:     5,
	})
	require.NoError(t, err)
	require.Equal(t, 13, eng.TaskCount())

	require.NoError(t, eng.Run(context.Background()))

	snap := eng.Stats().Snapshot()
	assert.Equal(t, 13, snap.Recorded)
	assert.Equal(t, 10, snap.Commands[0].Total)
	assert.Equal(t, 3, snap.Commands[1].Total)

	// Every identity shows up exactly once in the final listing.
	seen := map[[2]int]bool{}
	for _, res := range eng.Stats().Results() {
		key := [2]int{res.Task.CommandIndex, res.Task.Sequence}
		assert.False(t, seen[key])
		seen[key] = true
	}
	assert.Len(t, seen, 13)
}

func TestEngine_ConfigErrorBeforeExecution(t *testing.T) {
	_, err := New(Options{
		Commands:        []dispatch.CommandInput{command("true", "true")},
		DefaultRequests: 0,
		Concurrency:     2,
	})
	var cfgErr *dispatch.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEngine_EmptyCommands(t *testing.T) {
	_, err := New(Options{DefaultRequests: 1, Concurrency: 1})
	var cfgErr *dispatch.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEngine_Cancellation(t *testing.T) {
	n := 50
	eng, err := New(Options{
		Commands: []dispatch.CommandInput{
			{Raw: "sleep", Argv: []string{"sleep", "0.05"}, Override: &n},
		},
		DefaultRequests: 1,
		Concurrency:     2,
		Grace:           200 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	runErr := eng.Run(ctx)
	assert.ErrorIs(t, runErr, context.Canceled)

	// Exactly one result per task even on an aborted run.
	snap := eng.Stats().Snapshot()
	assert.Equal(t, 50, snap.Recorded)
	assert.Greater(t, snap.Global.Failed, 0)
}

func TestEngine_GraceExpiryKillsInFlight(t *testing.T) {
	n := 4
	eng, err := New(Options{
		Commands: []dispatch.CommandInput{
			{Raw: "sleep", Argv: []string{"sleep", "30"}, Override: &n},
		},
		DefaultRequests: 1,
		Concurrency:     4,
		Grace:           100 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// Every invocation outlives the grace period, so the watchdog has to
	// kill the process groups for the run to end.
	start := time.Now()
	runErr := eng.Run(ctx)
	assert.ErrorIs(t, runErr, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)

	snap := eng.Stats().Snapshot()
	assert.Equal(t, 4, snap.Recorded)
	for _, res := range eng.Stats().Results() {
		assert.Equal(t, runner.KindCancelled, res.Invocation.Kind)
		assert.Equal(t, -1, res.Invocation.ExitCode)
	}
}

func TestEngine_SuccessPolicy(t *testing.T) {
	n := 2
	eng, err := New(Options{
		Commands: []dispatch.CommandInput{
			{Raw: "exit 7", Argv: []string{"sh", "-c", "exit 7"}, Override: &n},
		},
		DefaultRequests: 1,
		Concurrency:     1,
		Success:         func(code int) bool { return code == 7 },
	})
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background()))
	snap := eng.Stats().Snapshot()
	assert.Equal(t, 2, snap.Global.Succeeded)
}
