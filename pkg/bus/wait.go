package bus

import (
	"time"

	"periph.io/x/host/v3/cpu"
)

// spinLimit is the longest wait served by spinning; longer waits sleep.
const spinLimit = 10 * time.Microsecond

// Wait blocks for at least d. Waits up to spinLimit busy-wait with
// cpu.Nanospin; longer waits sleep.
// Waits are not cancellable: a cycle that has started must finish.
func Wait(d time.Duration) {
	switch {
	case d <= 0:
	case d <= spinLimit:
		cpu.Nanospin(d)
	default:
		time.Sleep(d)
	}
}
