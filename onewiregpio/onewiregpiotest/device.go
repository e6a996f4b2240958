// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpiotest

import (
	"sync"

	"periph.io/x/conn/v3/onewire"
)

// Device is a simulated 1-wire slave.
//
// It understands the ROM commands Search ROM, Alarm Search, Match ROM, Skip
// ROM and Read ROM. Once selected, the first byte received is the function
// command; if Memory has an entry for it, the device answers the following
// read slots with that data.
type Device struct {
	Addr   onewire.Address
	Alarm  bool            // answers an alarm search
	Memory map[byte][]byte // function command -> response

	mu      sync.Mutex
	written [][]byte // function layer bytes received, one slice per selection

	state  devState
	bit    int    // bit position within the current field
	acc    uint64 // bits received so far
	phase  int    // search: 0 send bit, 1 send complement, 2 receive direction
	tx     []byte // pending response
	txBit  int
	txSlot bool // the current slot is one of ours to transmit
	fresh  bool // selected, no function command received yet
}

// Written returns the bytes the device received after being selected, one
// slice per function command, the command byte first.
func (d *Device) Written() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.written))
	for i, w := range d.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

type devState int

const (
	stIdle    devState = iota // not addressed, waits for a reset
	stROM                     // receiving the ROM command
	stSearch                  // taking part in a search
	stMatch                   // receiving the address of a Match ROM
	stReadROM                 // sending the address
	stFunc                    // selected, function command and data
)

//

func (d *Device) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = stROM
	d.bit = 0
	d.acc = 0
	d.phase = 0
	d.tx = nil
	d.txBit = 0
	d.txSlot = false
	d.fresh = false
}

// fall is called on the falling edge starting a slot. It returns true if the
// device pulls the line low to send a 0.
func (d *Device) fall() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case stSearch:
		b := d.romBit()
		switch d.phase {
		case 0:
			d.phase = 1
			d.txSlot = true
			return !b
		case 1:
			d.phase = 2
			d.txSlot = true
			return b
		}
	case stReadROM:
		b := d.romBit()
		d.txSlot = true
		if d.bit++; d.bit == 64 {
			d.selected()
		}
		return !b
	case stFunc:
		if len(d.tx) == 0 {
			return false
		}
		b := d.tx[0]&(1<<d.txBit) != 0
		d.txSlot = true
		if d.txBit++; d.txBit == 8 {
			d.tx = d.tx[1:]
			d.txBit = 0
		}
		return !b
	}
	return false
}

// rise is called when the master releases the line, with the bit decoded
// from the slot length.
func (d *Device) rise(bit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txSlot {
		d.txSlot = false
		return
	}
	switch d.state {
	case stROM:
		if v, ok := d.shift(bit, 8); ok {
			d.romCommand(byte(v))
		}
	case stSearch:
		if bit != d.romBit() {
			d.state = stIdle
			return
		}
		d.phase = 0
		if d.bit++; d.bit == 64 {
			d.selected()
		}
	case stMatch:
		if v, ok := d.shift(bit, 64); ok {
			if onewire.Address(v) == d.Addr {
				d.selected()
			} else {
				d.state = stIdle
			}
		}
	case stFunc:
		if v, ok := d.shift(bit, 8); ok {
			if d.fresh {
				d.fresh = false
				d.written = append(d.written, nil)
				if r, ok := d.Memory[byte(v)]; ok {
					d.tx = append([]byte(nil), r...)
				}
			}
			cur := &d.written[len(d.written)-1]
			*cur = append(*cur, byte(v))
		}
	}
}

func (d *Device) romCommand(cmd byte) {
	switch cmd {
	case 0xf0:
		d.state = stSearch
	case 0xec:
		if d.Alarm {
			d.state = stSearch
		} else {
			d.state = stIdle
		}
	case 0x55:
		d.state = stMatch
	case 0xcc:
		d.selected()
	case 0x33:
		d.state = stReadROM
	default:
		d.state = stIdle
	}
}

func (d *Device) selected() {
	d.state = stFunc
	d.bit = 0
	d.acc = 0
	d.fresh = true
}

// shift accumulates a received bit and returns the value once n bits were
// received.
func (d *Device) shift(bit bool, n int) (uint64, bool) {
	if bit {
		d.acc |= 1 << d.bit
	}
	if d.bit++; d.bit < n {
		return 0, false
	}
	v := d.acc
	d.bit = 0
	d.acc = 0
	return v, true
}

func (d *Device) romBit() bool {
	return d.Addr>>d.bit&1 != 0
}
