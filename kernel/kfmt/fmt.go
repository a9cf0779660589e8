// Package kfmt implements the kernel diagnostic sink. Output produced before a
// sink is attached is captured by a ring buffer and replayed once
// SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
	"sync"
)

var (
	// sinkMu serializes writes so that lines emitted by concurrent
	// allocator callers do not interleave.
	sinkMu sync.Mutex

	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// an output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats according to a format specifier and writes to the active
// output sink. Printf never fails the caller; write errors are dropped.
//
// Kernel code prefixes each message with the emitting module, e.g.
//
//	kfmt.Printf("[buddy] out of memory for order %d\n", order)
func Printf(format string, args ...interface{}) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early ring buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}

	fmt.Fprintf(w, format, args...)
}
