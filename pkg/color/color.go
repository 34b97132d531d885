// Package color provides terminal color output for the PatchGate CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/) and
// stays off when stdout is not a terminal.
package color

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

var state struct {
	enabled    atomic.Bool
	overridden atomic.Bool
	once       sync.Once
}

// Init decides whether colors are used. Only the first call has effect,
// unless Enable or Disable has been called since.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		if state.overridden.Load() {
			return
		}
		on := !noColorFlag && stdoutIsTerminal()
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			on = false
		}
		if os.Getenv("TERM") == "dumb" {
			on = false
		}
		state.enabled.Store(on)
	})
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Enabled reports whether color output is on.
func Enabled() bool {
	Init(false)
	return state.enabled.Load()
}

// Disable turns off color output.
func Disable() {
	state.overridden.Store(true)
	state.enabled.Store(false)
}

// Enable turns on color output.
func Enable() {
	state.overridden.Store(true)
	state.enabled.Store(true)
}

// ANSI codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	DimCode = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
)

type colorFunc func(string) string

func makeColorFunc(code string) colorFunc {
	return func(s string) string {
		if !Enabled() {
			return s
		}
		return code + s + Reset
	}
}

var (
	Redf     = makeColorFunc(Red)
	Greenf   = makeColorFunc(Green)
	Yellowf  = makeColorFunc(Yellow)
	Bluef    = makeColorFunc(Blue)
	Magentaf = makeColorFunc(Magenta)
	Cyanf    = makeColorFunc(Cyan)
	Grayf    = makeColorFunc(Gray)
	Boldf    = makeColorFunc(Bold)
	Dimf     = makeColorFunc(DimCode)
)

// Success formats text in green.
func Success(s string) string { return Greenf(s) }

// Successf is Success with printf-style arguments.
func Successf(format string, args ...any) string { return Greenf(fmt.Sprintf(format, args...)) }

// Error formats text in red.
func Error(s string) string { return Redf(s) }

// Errorf is Error with printf-style arguments.
func Errorf(format string, args ...any) string { return Redf(fmt.Sprintf(format, args...)) }

// Warning formats text in yellow.
func Warning(s string) string { return Yellowf(s) }

// Warningf is Warning with printf-style arguments.
func Warningf(format string, args ...any) string { return Yellowf(fmt.Sprintf(format, args...)) }

// Info formats text in cyan.
func Info(s string) string { return Cyanf(s) }

// Infof is Info with printf-style arguments.
func Infof(format string, args ...any) string { return Cyanf(fmt.Sprintf(format, args...)) }

// SnapshotID formats a snapshot ID or path.
func SnapshotID(s string) string { return Cyanf(s) }

// Header formats a header in bold.
func Header(s string) string { return Boldf(s) }

// Dim formats secondary information.
func Dim(s string) string { return Dimf(s) }

// Op colors a patch operation name: create green, update blue, delete red,
// rename magenta. Anything else is yellow.
func Op(op string) string {
	switch op {
	case "create":
		return Greenf(op)
	case "update":
		return Bluef(op)
	case "delete":
		return Redf(op)
	case "rename":
		return Magentaf(op)
	default:
		return Yellowf(op)
	}
}

// DiffLine colors one line of a unified diff.
func DiffLine(line string) string {
	switch {
	case len(line) >= 3 && (line[:3] == "+++" || line[:3] == "---"):
		return Boldf(line)
	case len(line) >= 2 && line[:2] == "@@":
		return Cyanf(line)
	case len(line) >= 1 && line[0] == '+':
		return Greenf(line)
	case len(line) >= 1 && line[0] == '-':
		return Redf(line)
	default:
		return line
	}
}

// Code formats a command string (bold + dim).
func Code(s string) string {
	if !Enabled() {
		return s
	}
	return Bold + DimCode + s + Reset
}
