package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loadflare/cmdline"
	"loadflare/config"
	"loadflare/dispatch"
	"loadflare/engine"
	"loadflare/log"
	"loadflare/report"
	"loadflare/stats"
	"loadflare/ui"
)

var (
	version = "1.0.0"

	requestsFlag    int
	concurrencyFlag int
	timeoutFlag     time.Duration
	graceFlag       time.Duration
	outputCapFlag   int
	okExitFlag      []int
	progressFlag    bool
	verboseFlag     bool

	rootCmd = &cobra.Command{
		Use:   `loadflare "command [-n N]" ["command" ...]`,
		Short: "Fire commands repeatedly through a bounded worker pool and aggregate the results",
		Long: `loadflare executes one or more commands repeatedly as isolated processes,
under a strict global concurrency ceiling, and reports success/failure and
latency statistics per command and overall.

Each command string may embed its own repeat count with -n/--requests;
commands without one use the global default. An embedded -c is ignored:
the concurrency ceiling is always global.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize()
			defer log.Close()

			cfg := config.LoadConfig()

			// Flags override config
			requests := cfg.DefaultRequests
			if cmd.Flags().Changed("requests") {
				requests = requestsFlag
			}
			concurrency := cfg.DefaultConcurrency
			if cmd.Flags().Changed("concurrency") {
				concurrency = concurrencyFlag
			}
			timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
			if cmd.Flags().Changed("timeout") {
				timeout = timeoutFlag
			}
			grace := time.Duration(cfg.GracePeriodSeconds) * time.Second
			if cmd.Flags().Changed("grace") {
				grace = graceFlag
			}
			outputCap := cfg.OutputCapBytes
			if cmd.Flags().Changed("output-cap") {
				outputCap = outputCapFlag
			}
			okExit := cfg.OKExitCodes
			if cmd.Flags().Changed("ok-exit") {
				okExit = okExitFlag
			}

			cmds, err := cmdline.ParseAll(args)
			if err != nil {
				return err
			}
			inputs := make([]dispatch.CommandInput, len(cmds))
			for i, c := range cmds {
				inputs[i] = dispatch.CommandInput{Raw: c.Raw, Argv: c.Argv, Override: c.Override}
			}

			eng, err := engine.New(engine.Options{
				Commands:        inputs,
				DefaultRequests: requests,
				Concurrency:     concurrency,
				Timeout:         timeout,
				Grace:           grace,
				OutputCap:       outputCap,
				Success:         successPolicy(okExit),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			snap, results := run(ctx, eng)
			if ctx.Err() != nil {
				fmt.Fprintf(os.Stderr, "interrupted, reporting partial results (log: %s)\n", log.FileName())
			}

			fmt.Println(report.Render(snap, results, eng.Elapsed(), verboseFlag))

			if snap.Global.Failed > 0 {
				return fmt.Errorf("%d of %d invocations failed", snap.Global.Failed, snap.Global.Total)
			}
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("loadflare version %s\n", version)
		},
	}
)

// run executes the engine, with the live progress view when requested.
func run(ctx context.Context, eng *engine.Engine) (stats.Snapshot, []dispatch.Result) {
	if !progressFlag {
		if err := eng.Run(ctx); err != nil {
			log.InfoLog.Printf("run interrupted: %v", err)
		}
		return eng.Stats().Snapshot(), eng.Stats().Results()
	}

	// The progress view owns the terminal while workers run. Its quit key
	// cancels claims the same way a signal does.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
	}()

	if err := ui.Run(eng.Stats().Snapshot, cancel); err != nil {
		log.WarningLog.Printf("progress view failed: %v", err)
	}
	if err := <-done; err != nil {
		log.InfoLog.Printf("run interrupted: %v", err)
	}
	return eng.Stats().Snapshot(), eng.Stats().Results()
}

// successPolicy builds the runner success policy from the allowed exit codes.
// The plain exit-zero default stays nil so the runner uses its own.
func successPolicy(okExit []int) func(int) bool {
	if len(okExit) == 0 || (len(okExit) == 1 && okExit[0] == 0) {
		return nil
	}
	allowed := make(map[int]bool, len(okExit))
	for _, code := range okExit {
		allowed[code] = true
	}
	return func(exitCode int) bool { return allowed[exitCode] }
}

func init() {
	rootCmd.Flags().IntVarP(&requestsFlag, "requests", "n", 1,
		"Default number of times to run each command without an embedded -n")
	rootCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "c", 0,
		"Global ceiling on concurrently running invocations (default: number of CPUs)")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0,
		"Per-invocation timeout (0 = unbounded)")
	rootCmd.Flags().DurationVar(&graceFlag, "grace", dispatch.DefaultGracePeriod,
		"How long in-flight invocations may finish after a cancellation")
	rootCmd.Flags().IntVar(&outputCapFlag, "output-cap", 0,
		"Captured output cap per invocation in bytes")
	rootCmd.Flags().IntSliceVar(&okExitFlag, "ok-exit", []int{0},
		"Exit codes counted as success")
	rootCmd.Flags().BoolVar(&progressFlag, "progress", false,
		"Show a live progress view while the run executes")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Include the per-invocation listing in the report")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
