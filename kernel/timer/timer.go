// Package timer provides the system timer used to timestamp thread creation
// and accumulate runtimes.
package timer

import "time"

var (
	// nowFn is mocked by tests.
	nowFn = time.Now
)

// SystemTimer reports the time elapsed since it was started.
type SystemTimer struct {
	start time.Time
}

// New returns a timer that starts counting now.
func New() *SystemTimer {
	return &SystemTimer{start: nowFn()}
}

// RuntimeNanos returns the number of nanoseconds since the timer was started.
func (t *SystemTimer) RuntimeNanos() uint64 {
	elapsed := nowFn().Sub(t.start)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed)
}
