// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"time"

	"periph.io/x/host/v3/cpu"
)

// Clock is the time source used to time the bus slots.
//
// Now must be monotonic. Delay must block for at least d without yielding the
// processor; it is called with interrupts suppressed.
type Clock interface {
	Now() time.Duration
	Delay(d time.Duration)
}

// HostClock returns a Clock backed by the Go monotonic clock.
func HostClock() Clock {
	return hostClock{epoch: time.Now()}
}

type hostClock struct {
	epoch time.Time
}

func (c hostClock) Now() time.Duration {
	return time.Since(c.epoch)
}

func (c hostClock) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	// cpu.Nanospin is only accurate for very short waits.
	if d <= 10*time.Microsecond {
		cpu.Nanospin(d)
		return
	}
	for start := c.Now(); c.Now()-start < d; {
	}
}
