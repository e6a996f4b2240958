// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
//
// The write and read slot timings are measured from the falling edge that
// starts the slot. Reset timings are fixed by the protocol and not
// configurable.
type Opts struct {
	WriteOneLow  time.Duration // low time to write a 1, range 1µs..15µs
	WriteZeroLow time.Duration // low time to write a 0, range 60µs..120µs
	WriteSlot    time.Duration // total write slot, range 60µs..120µs
	ReadInitLow  time.Duration // low time starting a read slot, >1µs
	SampleOffset time.Duration // when the line is sampled in a read slot
	ReadSlot     time.Duration // total read slot, >=60µs

	// CheckROMCRC additionally rejects search results whose last byte is not
	// the CRC of the first seven.
	CheckROMCRC bool

	Clock    Clock                  // nil uses HostClock()
	Critical func() (restore func()) // nil uses the platform default
	Logger   *slog.Logger           // nil discards
	// Trace, when set, is called with each framed value. It is never called
	// from within a timed slot.
	Trace func(op string, v uint64)
}

// DefaultOpts is suitable for hosts where switching the pin to output takes a
// couple of microseconds before the line actually falls.
var DefaultOpts = Opts{
	WriteOneLow:  6 * time.Microsecond,
	WriteZeroLow: 60 * time.Microsecond,
	WriteSlot:    65 * time.Microsecond,
	ReadInitLow:  3 * time.Microsecond,
	SampleOffset: 14 * time.Microsecond,
	ReadSlot:     60 * time.Microsecond,
}

// FastPinOpts is DefaultOpts for hosts where the line falls as soon as the pin
// is switched to output; the read sample is taken earlier to compensate.
var FastPinOpts = Opts{
	WriteOneLow:  6 * time.Microsecond,
	WriteZeroLow: 60 * time.Microsecond,
	WriteSlot:    65 * time.Microsecond,
	ReadInitLow:  3 * time.Microsecond,
	SampleOffset: 12 * time.Microsecond,
	ReadSlot:     60 * time.Microsecond,
}

// New returns a 1-wire bus master bit-banging the protocol on p.
//
// p must be connected to the data line with a pull-up resistor. The pin is
// released (input with pull-up) before New returns. opts may be nil, in which
// case DefaultOpts is used.
func New(p gpio.PinIO, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("onewiregpio: pin is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	d := &Dev{
		pin:      p,
		opts:     *opts,
		clock:    opts.Clock,
		critical: opts.Critical,
		logger:   opts.Logger,
	}
	if d.clock == nil {
		d.clock = HostClock()
	}
	if d.critical == nil {
		d.critical = enterCritical
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	d.logger = d.logger.With("pin", p.String())
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("onewiregpio: failed to release %s: %w", p, err)
	}
	d.ResetSearch()
	return d, nil
}

// Dev is a 1-wire bus master driving a single GPIO pin. It implements
// onewire.Bus and onewire.BusSearcher.
//
// The bit and byte level methods are not synchronised and must be driven by a
// single caller. Tx and Search lock the bus for the whole transaction.
//
// Dev implements a persistent error model for the pin itself: if the pin
// fails to change mode, the error is kept and returned by every subsequent
// Tx. The bit level methods keep running in that state.
type Dev struct {
	mu       sync.Mutex
	pin      gpio.PinIO
	opts     Opts
	clock    Clock
	critical func() func()
	logger   *slog.Logger
	err      error // persistent pin error

	// Search state, valid across consecutive SearchNext calls.
	lastDiscrepancy int             // 1-based bit index of the last branch taken as 0
	lastDevice      bool            // the previous SearchNext returned the last device
	rom             onewire.Address // address being accumulated
}

func (d *Dev) String() string {
	return "onewiregpio{" + d.pin.String() + "}"
}

// Halt implements conn.Resource.
//
// It releases the line, ending any strong pull-up.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pin.In(gpio.PullUp, gpio.NoEdge)
}

// Q implements onewire.Pins.
func (d *Dev) Q() gpio.PinIO {
	return d.pin
}

// Tx performs a bus transaction: a reset, the bytes in w written then len(r)
// bytes read. With onewire.StrongPullup the pin actively drives the line high
// after the last byte, until the next operation on the bus.
//
// A reset without presence pulse returns an error implementing both
// onewire.NoDevicesError and onewire.BusError.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	present := d.Reset()
	if d.err != nil {
		return d.err
	}
	if !present {
		return noDevicesError("onewiregpio: no device present")
	}
	d.WriteBytes(w)
	d.ReadBytes(r)
	if power == onewire.StrongPullup {
		d.pinErr(d.pin.Out(gpio.High))
	}
	return d.err
}

// Search performs a full search cycle on the bus and returns the addresses of
// all devices, or of the devices in alarm state when alarmOnly is true.
//
// An empty bus returns no address and no error. Search resets the search
// state used by SearchNext.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := byte(cmdSearchROM)
	if alarmOnly {
		cmd = cmdAlarmSearch
	}
	devices := d.searchAll(cmd)
	return devices, d.err
}

// SearchTriplet implements onewire.BusSearcher.
//
// It reads a bit and its complement then writes the direction taken. It
// should not be used directly; use Search or SearchNext instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	idBit := d.ReadBit()
	cmpBit := d.ReadBit()
	tr := onewire.TripletResult{GotZero: !idBit, GotOne: !cmpBit}
	switch {
	case tr.GotZero && tr.GotOne:
		tr.Taken = direction & 1
	case tr.GotZero:
		tr.Taken = 0
	default:
		// Also covers no device responding: write a 1 like the DS2482 does.
		tr.Taken = 1
	}
	d.WriteBit(tr.Taken == 1)
	return tr, d.err
}

//

func (o *Opts) validate() error {
	switch {
	case o.WriteOneLow <= 0 || o.WriteOneLow > 15*time.Microsecond:
		return errors.New("onewiregpio: WriteOneLow must be within 1µs..15µs")
	case o.WriteZeroLow < 60*time.Microsecond || o.WriteZeroLow >= o.WriteSlot:
		return errors.New("onewiregpio: WriteZeroLow must be at least 60µs and shorter than WriteSlot")
	case o.WriteSlot > 120*time.Microsecond:
		return errors.New("onewiregpio: WriteSlot must not exceed 120µs")
	case o.ReadInitLow <= time.Microsecond || o.ReadInitLow >= o.SampleOffset:
		return errors.New("onewiregpio: ReadInitLow must be over 1µs and before SampleOffset")
	case o.SampleOffset > 15*time.Microsecond:
		return errors.New("onewiregpio: SampleOffset must be within 15µs of the slot start")
	case o.ReadSlot < 60*time.Microsecond:
		return errors.New("onewiregpio: ReadSlot must be at least 60µs")
	}
	return nil
}

// pinErr keeps the first pin error.
func (d *Dev) pinErr(err error) {
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("onewiregpio: %s: %w", d.pin, err)
	}
}

func (d *Dev) trace(op string, v uint64) {
	if d.opts.Trace != nil {
		d.opts.Trace(op, v)
	}
}

// noDevicesError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

const (
	cmdSearchROM   = 0xf0 // enumerate devices
	cmdAlarmSearch = 0xec // enumerate devices in alarm state
	cmdMatchROM    = 0x55 // address a single device
	cmdSkipROM     = 0xcc // address all devices
	cmdReadROM     = 0x33 // read the address of the only device
)

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
var _ onewire.Pins = &Dev{}
var _ onewire.NoDevicesError = noDevicesError("")
var _ onewire.BusError = noDevicesError("")
