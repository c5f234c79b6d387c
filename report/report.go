// Package report renders the final run report for the terminal: per-command and
// global statistics, failures grouped by command and kind, and optionally the
// full per-invocation listing.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"

	"loadflare/dispatch"
	"loadflare/log"
	"loadflare/runner"
	"loadflare/stats"
)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{
	Light: "#1a1a1a", Dark: "#dddddd",
})

var commandStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

var okStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

var failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

var subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#888888", Dark: "#777777",
})

// Render produces the run report. results must be in queue order, which is
// what the aggregator returns after a finished run.
func Render(snap stats.Snapshot, results []dispatch.Result, elapsed time.Duration, verbose bool) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Run Summary"))
	sb.WriteString("\n\n")

	for i, cs := range snap.Commands {
		sb.WriteString(commandStyle.Render(fmt.Sprintf("%d. %s", i+1, Sanitize(cs.Raw))))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("   %s  %s  %s\n",
			fmt.Sprintf("total %d", cs.Total),
			okStyle.Render(fmt.Sprintf("ok %d", cs.Succeeded)),
			renderFailCount(cs.Failed),
		))
		if cs.Succeeded+cs.Failed > 0 && cs.Max > 0 {
			sb.WriteString(subtleStyle.Render(fmt.Sprintf("   min %v  mean %v  max %v  p95 %v",
				cs.Min.Round(time.Millisecond),
				cs.Mean.Round(time.Millisecond),
				cs.Max.Round(time.Millisecond),
				cs.P95.Round(time.Millisecond))))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render("Overall"))
	sb.WriteString(fmt.Sprintf("\n   %d invocations in %v: %s, %s\n",
		snap.Global.Total,
		elapsed.Round(10*time.Millisecond),
		okStyle.Render(fmt.Sprintf("%d succeeded", snap.Global.Succeeded)),
		renderFailCount(snap.Global.Failed),
	))
	if snap.Global.Max > 0 {
		sb.WriteString(subtleStyle.Render(fmt.Sprintf("   min %v  mean %v  max %v  p95 %v",
			snap.Global.Min.Round(time.Millisecond),
			snap.Global.Mean.Round(time.Millisecond),
			snap.Global.Max.Round(time.Millisecond),
			snap.Global.P95.Round(time.Millisecond))))
		sb.WriteString("\n")
	}

	if failures := renderFailures(snap, results); failures != "" {
		sb.WriteString("\n")
		sb.WriteString(failures)
	}

	if verbose {
		sb.WriteString("\n")
		sb.WriteString(renderListing(results))
	}

	return sb.String()
}

func renderFailCount(n int) string {
	s := fmt.Sprintf("failed %d", n)
	if n == 0 {
		return subtleStyle.Render(s)
	}
	return failStyle.Render(s)
}

// renderFailures groups failed invocations by command and error kind.
func renderFailures(snap stats.Snapshot, results []dispatch.Result) string {
	type key struct {
		kind     runner.ErrorKind
		exitCode int
	}
	grouped := make([]map[key]int, len(snap.Commands))
	any := false
	for _, r := range results {
		if r.Invocation.Success {
			continue
		}
		any = true
		k := key{kind: r.Invocation.Kind}
		if r.Invocation.Kind == runner.KindExit {
			k.exitCode = r.Invocation.ExitCode
		}
		if grouped[r.Task.CommandIndex] == nil {
			grouped[r.Task.CommandIndex] = make(map[key]int)
		}
		grouped[r.Task.CommandIndex][k]++
	}
	if !any {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Failures"))
	sb.WriteString("\n")
	for i, byKind := range grouped {
		if len(byKind) == 0 {
			continue
		}
		sb.WriteString(commandStyle.Render(fmt.Sprintf("%d. %s", i+1, Sanitize(snap.Commands[i].Raw))))
		sb.WriteString("\n")

		keys := make([]key, 0, len(byKind))
		for k := range byKind {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(a, b int) bool {
			if keys[a].kind != keys[b].kind {
				return keys[a].kind < keys[b].kind
			}
			return keys[a].exitCode < keys[b].exitCode
		})
		for _, k := range keys {
			label := k.kind.String()
			if k.kind == runner.KindExit {
				label = fmt.Sprintf("%s (exit %d)", label, k.exitCode)
			}
			sb.WriteString(failStyle.Render(fmt.Sprintf("   %d × %s", byKind[k], label)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderListing prints every invocation with its captured output, in queue
// order, the way the detailed per-request view of a verbose run reads.
func renderListing(results []dispatch.Result) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Invocations"))
	sb.WriteString("\n")
	for _, r := range results {
		status := okStyle.Render("ok")
		if !r.Invocation.Success {
			status = failStyle.Render(r.Invocation.Kind.String())
		}
		sb.WriteString(fmt.Sprintf("[cmd %d req %d] %s", r.Task.CommandIndex+1, r.Task.Sequence+1, status))
		if !r.Invocation.StartTime.IsZero() {
			sb.WriteString(subtleStyle.Render(fmt.Sprintf("  %v  exit %d",
				r.Invocation.Duration.Round(time.Millisecond), r.Invocation.ExitCode)))
		}
		sb.WriteString("\n")

		out := strings.TrimRight(string(r.Invocation.Output), "\n")
		if out != "" {
			sb.WriteString(indent.String(out, 2))
			sb.WriteString("\n")
		}
		if r.Invocation.Truncated {
			sb.WriteString(subtleStyle.Render("  [output truncated]"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Sanitize strips credentials from a raw command label before it is rendered.
func Sanitize(raw string) string {
	return log.SanitizeArgs(strings.Fields(raw))
}
