// Package cmdline turns raw command strings into executable templates.
//
// A raw string may embed a per-command repeat override ("-n 5" or "--requests 5")
// anywhere inside it. The override is stripped before the template ever reaches
// the dispatcher, so dispatch never re-parses or mutates a template. "-n" counts
// as an override only when an integer follows; otherwise it belongs to the
// command and passes through untouched. An embedded "-c"/"--concurrency" is
// stripped and ignored; the global ceiling always applies.
package cmdline

import (
	"fmt"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"loadflare/log"
)

// Command is one parsed command template plus its embedded override, if any.
type Command struct {
	// Raw is the original string as given on the command line.
	Raw string
	// Argv is the template with the loadflare-specific flags stripped out.
	Argv []string
	// Override is the embedded repeat count, nil when the string had none.
	Override *int
}

// Parse splits a raw command string and extracts the embedded override.
func Parse(raw string) (Command, error) {
	args, err := shellwords.Parse(raw)
	if err != nil {
		return Command{}, fmt.Errorf("parsing command %q: %w", raw, err)
	}
	if len(args) == 0 {
		return Command{}, fmt.Errorf("command %q is empty", raw)
	}

	cmd := Command{Raw: raw}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-n", "--requests":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					cmd.Override = &n
					i++
					continue
				}
			}
			// Not a repeat count, so leave the flag for the command
			// itself (curl -n reads ~/.netrc, for one).
			log.DebugLog.Printf("%s in %q is not a repeat override, passing it through", args[i], raw)
			cmd.Argv = append(cmd.Argv, args[i])
		case "-c", "--concurrency":
			log.WarningLog.Printf("per-command concurrency in %q is ignored, the global ceiling applies", raw)
			// Consume the value if one follows.
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
		default:
			cmd.Argv = append(cmd.Argv, args[i])
		}
	}

	if len(cmd.Argv) == 0 {
		return Command{}, fmt.Errorf("command %q has no arguments left after extracting overrides", raw)
	}
	return cmd, nil
}

// ParseAll parses every raw string, failing on the first malformed one.
func ParseAll(raws []string) ([]Command, error) {
	cmds := make([]Command, 0, len(raws))
	for _, raw := range raws {
		cmd, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
