// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !tinygo

package onewiregpio

import "runtime"

// enterCritical pins the calling goroutine to its OS thread for the duration
// of a slot. A hosted Go program cannot mask interrupts; this keeps the
// scheduler from migrating the goroutine mid-pulse.
func enterCritical() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
