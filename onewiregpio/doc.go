// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpio implements a 1-wire bus master by bit-banging a single
// GPIO pin.
//
// The pin must be wired to the data line together with an external pull-up
// resistor (typically 4.7kΩ). The master pulls the line low by switching the
// pin to output low and releases it by switching it back to input with
// pull-up.
//
// Every slot is timed by busy-waiting on a monotonic microsecond clock while
// preemption is suppressed, see Opts.Critical. A hosted Go program can only
// approximate this by locking the goroutine to its OS thread; for reliable
// operation run it on a real-time kernel or an isolated CPU, or build with
// TinyGo where interrupts are actually disabled.
//
// Dev implements onewire.Bus so the device drivers of this repository, such
// as ds18b20, can be used on top of it. It also exposes the bit and byte
// level operations and the search algorithm directly.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/ds18b20.pdf
//
// https://www.analog.com/en/resources/technical-articles/1wire-search-algorithm.html
package onewiregpio
