// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpiotest simulates a 1-wire line to test the bit-banged bus
// master without hardware.
//
// Bus plays the role of both the master's GPIO pin and its clock: time only
// advances when the master delays or samples the line, so every slot is
// exactly reproducible.
package onewiregpiotest

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

// Thresholds used by the simulated slaves to decode what the master sent.
const (
	ResetThreshold = 480 * time.Microsecond // a low pulse at least this long is a reset
	WriteThreshold = 15 * time.Microsecond  // a low pulse shorter than this is a 1
)

// Slot is a low pulse driven by the master.
type Slot struct {
	Start time.Duration // falling edge
	Low   time.Duration // time the master held the line low
}

// IsReset returns true if the slot was a reset pulse.
func (s Slot) IsReset() bool {
	return s.Low >= ResetThreshold
}

// Bit returns the bit a slave decodes from the slot.
func (s Slot) Bit() bool {
	return s.Low < WriteThreshold
}

// Bus simulates the line, its pull-up resistor and the slaves connected to it.
// It implements gpio.PinIO for the master's pin and onewiregpio.Clock.
//
// Modify its exported members before use to simulate timing faults.
type Bus struct {
	pin.BasicPin

	// These should be set before the bus is used.
	Devices       []*Device
	RiseTime      time.Duration // time the line takes to float high once released
	PresenceDelay time.Duration // from release after a reset to the presence pulse
	PresenceWidth time.Duration // length of the presence pulse
	HoldTime      time.Duration // how long a slave sending a 0 holds the line low
	ReadCost      time.Duration // virtual time consumed by each Read, must be >0

	mu         sync.Mutex
	now        time.Duration
	driveLow   bool
	driveHigh  bool
	pull       gpio.Pull
	fallAt     time.Duration
	releasedAt time.Duration
	holdUntil  time.Duration
	presence   [2]time.Duration // presence pulse window [from, to)
	slots      []Slot
	resets     int
	reads      int
}

// NewBus returns a Bus with datasheet typical timings and the given devices.
func NewBus(devices ...*Device) *Bus {
	return &Bus{
		BasicPin:      pin.BasicPin{N: "1W"},
		Devices:       devices,
		PresenceDelay: 30 * time.Microsecond,
		PresenceWidth: 120 * time.Microsecond,
		HoldTime:      30 * time.Microsecond,
		ReadCost:      time.Microsecond,
		pull:          gpio.PullUp,
	}
}

// Now implements onewiregpio.Clock.
func (b *Bus) Now() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// Delay implements onewiregpio.Clock.
func (b *Bus) Delay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > 0 {
		b.now += d
	}
}

// Slots returns the low pulses driven by the master so far.
func (b *Bus) Slots() []Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Slot(nil), b.slots...)
}

// Resets returns the number of reset pulses sent by the master.
func (b *Bus) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

// Reads returns the number of times the master sampled the line.
func (b *Bus) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

// ClearLog forgets the recorded slots and counters.
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = nil
	b.resets = 0
	b.reads = 0
}

// String implements conn.Resource.
func (b *Bus) String() string {
	return "onewiregpiotest(" + b.N + ")"
}

// In implements gpio.PinIn. It releases the line.
func (b *Bus) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return errors.New("onewiregpiotest: edge detection not supported")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pull = pull
	b.driveHigh = false
	if b.driveLow {
		b.rise()
	}
	return nil
}

// Read implements gpio.PinIn.
func (b *Bus) Read() gpio.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	l := b.level()
	b.now += b.ReadCost
	return l
}

// WaitForEdge implements gpio.PinIn.
func (b *Bus) WaitForEdge(time.Duration) bool {
	return false
}

// Pull implements gpio.PinIn.
func (b *Bus) Pull() gpio.Pull {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pull
}

// DefaultPull implements gpio.PinIn.
func (b *Bus) DefaultPull() gpio.Pull {
	return gpio.PullUp
}

// Out implements gpio.PinOut.
//
// Low pulls the line down and starts a slot. High drives the line high, as
// done for a strong pull-up.
func (b *Bus) Out(l gpio.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l == gpio.High {
		if b.driveLow {
			b.rise()
		}
		b.driveHigh = true
		return nil
	}
	b.driveHigh = false
	if b.driveLow {
		return nil
	}
	b.driveLow = true
	b.fallAt = b.now
	for _, d := range b.Devices {
		if d.fall() {
			b.holdUntil = b.now + b.HoldTime
		}
	}
	return nil
}

// PWM implements gpio.PinOut.
func (b *Bus) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("onewiregpiotest: PWM not supported")
}

//

// rise ends the slot started by the master. b.mu must be held.
func (b *Bus) rise() {
	b.driveLow = false
	b.releasedAt = b.now
	s := Slot{Start: b.fallAt, Low: b.now - b.fallAt}
	b.slots = append(b.slots, s)
	if s.IsReset() {
		b.resets++
		b.holdUntil = 0
		b.presence = [2]time.Duration{}
		for _, d := range b.Devices {
			d.reset()
		}
		if len(b.Devices) != 0 {
			b.presence[0] = b.now + b.PresenceDelay
			b.presence[1] = b.presence[0] + b.PresenceWidth
		}
		return
	}
	for _, d := range b.Devices {
		d.rise(s.Bit())
	}
}

// level returns the level of the line now. b.mu must be held.
func (b *Bus) level() gpio.Level {
	switch {
	case b.driveLow:
		return gpio.Low
	case b.driveHigh:
		return gpio.High
	case b.pull != gpio.PullUp:
		// Without the pin's pull-up only the external resistor remains, which
		// is not simulated.
		return gpio.Low
	case b.now < b.releasedAt+b.RiseTime:
		return gpio.Low
	case b.now < b.holdUntil:
		return gpio.Low
	case b.now >= b.presence[0] && b.now < b.presence[1]:
		return gpio.Low
	}
	return gpio.High
}

// ROM returns a valid address made of the family code, the 48 bits serial
// number and their CRC.
func ROM(family byte, serial uint64) onewire.Address {
	var buf [8]byte
	buf[0] = family
	for i := 0; i < 6; i++ {
		buf[i+1] = byte(serial >> (8 * i))
	}
	buf[7] = onewire.CalcCRC(buf[:7])
	var a onewire.Address
	for i, v := range buf {
		a |= onewire.Address(v) << (8 * i)
	}
	return a
}

// Bytes decodes write slots into bytes, least significant bit first. A
// trailing partial byte is dropped.
func Bytes(slots []Slot) []byte {
	out := make([]byte, 0, len(slots)/8)
	for i := 0; i+8 <= len(slots); i += 8 {
		var v byte
		for j, s := range slots[i : i+8] {
			if s.Bit() {
				v |= 1 << j
			}
		}
		out = append(out, v)
	}
	return out
}

var _ gpio.PinIO = &Bus{}
