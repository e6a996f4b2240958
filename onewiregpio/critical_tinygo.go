// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build tinygo

package onewiregpio

import "runtime/interrupt"

// enterCritical disables interrupts on the current core until the returned
// function is called.
func enterCritical() func() {
	state := interrupt.Disable()
	return func() { interrupt.Restore(state) }
}
