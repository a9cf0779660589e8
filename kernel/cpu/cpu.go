// Package cpu provides the processor primitives used by the core. The hosted
// build has no privileged instructions available so each primitive is
// expressed in terms of the Go scheduler.
package cpu

import "runtime"

// Halt stops instruction execution on the calling CPU. Hosted builds park the
// calling goroutine forever.
func Halt() {
	select {}
}

// WaitForInterrupt idles the CPU until the next interrupt arrives. Idle
// threads call it in a loop; hosted builds yield the processor instead.
func WaitForInterrupt() {
	runtime.Gosched()
}
