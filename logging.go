package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// newLogger creates the diagnostic logger. It is silent unless LOGLEVEL names
// a lower level or debug is set, so it never competes with the console.
func newLogger(level string, debug bool) zerolog.Logger {
	lvl := zerolog.FatalLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && parsed != zerolog.NoLevel {
			lvl = parsed
		}
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// errorTrace formats err for the operator. Verbose mode lists the whole
// wrapped chain and the stack of a recovered panic.
func errorTrace(err error, verbose bool) string {
	if !verbose {
		return err.Error() + "\n\nSet DUMPER_TRACEBACK=1 for full diagnostics."
	}

	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteString("\n\nError chain:")
	walkErrors(err, 0, func(e error, depth int) {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("  ", depth+1))
		fmt.Fprintf(&b, "%T", e)
		b.WriteString(": ")
		b.WriteString(e.Error())
	})

	var pe *panicError
	if errors.As(err, &pe) {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(string(pe.stack), "\n"))
	}
	return b.String()
}

// walkErrors visits err and everything it wraps, depth first
func walkErrors(err error, depth int, fn func(error, int)) {
	if err == nil {
		return
	}
	fn(err, depth)
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			walkErrors(e, depth+1, fn)
		}
	case interface{ Unwrap() error }:
		walkErrors(u.Unwrap(), depth+1, fn)
	}
}
