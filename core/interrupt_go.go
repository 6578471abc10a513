//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// On a hosted build the motion engine runs as a goroutine, so the
// "interrupts off" window is a process-wide mutex instead.
var criticalSection sync.Mutex

// disableInterrupts enters the critical section shared with the motion engine
func disableInterrupts() State {
	criticalSection.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	criticalSection.Unlock()
}
