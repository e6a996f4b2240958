// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Reset timings, DS18B20 datasheet p.15. All waits are measured from the
// moment the master releases the line.
const (
	resetLow     = 480 * time.Microsecond // reset pulse, also the minimum presence slot
	riseWait     = 15 * time.Microsecond  // line must float high within this
	presenceWait = 240 * time.Microsecond // a slave must pull low within this
	releaseWait  = 480 * time.Microsecond // the slave must end its presence pulse within this
)

// Reset sends a reset pulse and returns true if at least one device answered
// with a presence pulse.
//
// It takes at least 960µs. Timing violations are logged and do not abort the
// reset: a presence pulse that is too long still counts as presence.
func (d *Dev) Reset() bool {
	d.drive()
	d.clock.Delay(resetLow)
	p := d.detectPresence()
	d.padSlot(p.start, resetLow)

	switch {
	case !p.floated:
		d.logger.Error("bus not released to tri-state after reset", "waited", p.rise, "max", riseWait)
	case !p.present:
		d.logger.Warn("no presence pulse after reset", "waited", p.pulled, "max", presenceWait)
	case !p.released:
		d.logger.Warn("presence pulse not released", "pulledAfter", p.pulled, "waited", p.release, "max", releaseWait)
	}
	return p.present
}

// presence is the outcome of the presence detection, collected within the
// critical section and reported after it.
type presence struct {
	start    time.Duration // when the line was released
	floated  bool
	present  bool
	released bool
	rise     time.Duration // since start, until the line was seen high
	pulled   time.Duration // since start, until a slave pulled low
	release  time.Duration // since start, until the slave released
}

func (d *Dev) detectPresence() (p presence) {
	restore := d.critical()
	defer restore()
	d.release()
	p.start = d.clock.Now()
	if p.rise, p.floated = d.waitLevel(gpio.High, p.start, riseWait); !p.floated {
		return p
	}
	if p.pulled, p.present = d.waitLevel(gpio.Low, p.start, presenceWait); !p.present {
		return p
	}
	p.release, p.released = d.waitLevel(gpio.High, p.start, releaseWait)
	return p
}

// WriteBit writes a single bit in one write slot.
//
// A 1 is a short low pulse, a 0 a long one; the slot lasts Opts.WriteSlot
// either way.
func (d *Dev) WriteBit(bit bool) {
	low := d.opts.WriteZeroLow
	if bit {
		low = d.opts.WriteOneLow
	}
	restore := d.critical()
	defer restore()
	start := d.clock.Now()
	d.drive()
	d.clock.Delay(low)
	d.release()
	d.padSlot(start, d.opts.WriteSlot)
}

// ReadBit reads a single bit in one read slot.
//
// The line is sampled once, Opts.SampleOffset after the slot started. A slave
// sending a 0 holds the line low past that point.
func (d *Dev) ReadBit() bool {
	restore := d.critical()
	defer restore()
	start := d.clock.Now()
	d.drive()
	d.clock.Delay(d.opts.ReadInitLow)
	d.release()
	d.padSlot(start, d.opts.SampleOffset)
	bit := d.pin.Read() == gpio.High
	d.padSlot(start, d.opts.ReadSlot)
	return bit
}

//

// drive pulls the line low.
func (d *Dev) drive() {
	d.pinErr(d.pin.Out(gpio.Low))
}

// release lets the pull-up resistor, or a slave, set the line level.
func (d *Dev) release() {
	d.pinErr(d.pin.In(gpio.PullUp, gpio.NoEdge))
}

// padSlot blocks until slot has elapsed since start. It measures from start
// so the overhead of the pin calls does not accumulate across slots.
func (d *Dev) padSlot(start, slot time.Duration) {
	if left := slot - (d.clock.Now() - start); left > 0 {
		d.clock.Delay(left)
	}
}

// waitLevel polls the line until it reads l or more than budget elapsed since
// start. It returns the time elapsed at the last check.
func (d *Dev) waitLevel(l gpio.Level, start, budget time.Duration) (time.Duration, bool) {
	for {
		elapsed := d.clock.Now() - start
		if elapsed > budget {
			return elapsed, false
		}
		if d.pin.Read() == l {
			return elapsed, true
		}
	}
}
