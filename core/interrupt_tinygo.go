//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks the step interrupt while the realtime state is
// copied
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
