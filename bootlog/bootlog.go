// Package bootlog carries the loader's error and diagnostic-halt
// conventions. All fatal loader errors are represented as *Error values
// rather than the stdlib error interface, mirroring gopheros's
// kernel.Error: the loader runs before any allocator is available, so error
// values are pre-declared package-level pointers instead of being
// constructed with errors.New/fmt.Errorf at the failure site.
package bootlog

import "fmt"

// Error describes a boot-time failure. Every fatal condition the loader can
// hit is declared as a package-level *Error so construction never needs the
// heap once the allocator is unavailable.
type Error struct {
	// Module names the component that raised the error.
	Module string
	// Message is a short, human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// haltFn stops the loader; it panics, so it never returns.
var haltFn = func() { panic("system halted") }

// Sink receives diagnostic console output. The default discards it;
// callers may replace it to capture or forward the output.
var Sink = func(string) {}

// Printf writes a formatted diagnostic line to the boot console.
func Printf(format string, args ...interface{}) {
	Sink(fmt.Sprintf(format, args...))
}

// Panic prints a diagnostic banner for err and halts the loader. Panic is
// the only response to a framing or layout error: the loader never
// attempts a partial boot.
func Panic(err *Error) {
	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** loader panic: system halted ***\n")
	Printf("-----------------------------------\n")
	haltFn()
}

// Assert halts with err if cond is false. It is used for the handful of
// sanity dead-reckoning checks ported verbatim from the source (e.g. the
// XArg length check in the swap argument merger).
func Assert(cond bool, err *Error) {
	if !cond {
		Panic(err)
	}
}
