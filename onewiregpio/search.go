// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

// ResetSearch clears the search state so the next SearchNext starts a new
// enumeration of the bus.
func (d *Dev) ResetSearch() {
	d.lastDiscrepancy = 0
	d.lastDevice = false
	d.rom = 0
}

// SearchNext returns the next device address on the bus, or 0 once all
// devices have been returned or if the search failed.
//
// Each call runs one search pass, continuing from where the previous call
// left off. Any failure resets the search state. Call ResetSearch to start
// over. For a description of the algorithm, see Maxim's AppNote 187.
//
// Devices joining or leaving the bus during an enumeration may be missed or
// returned twice.
func (d *Dev) SearchNext() onewire.Address {
	return d.searchNext(cmdSearchROM)
}

// SearchAll resets the search state and returns the addresses of all devices
// on the bus.
func (d *Dev) SearchAll() []onewire.Address {
	return d.searchAll(cmdSearchROM)
}

//

func (d *Dev) searchAll(cmd byte) []onewire.Address {
	d.ResetSearch()
	var devices []onewire.Address
	for {
		a := d.searchNext(cmd)
		if a == 0 {
			return devices
		}
		devices = append(devices, a)
	}
}

func (d *Dev) searchNext(cmd byte) onewire.Address {
	if d.lastDevice {
		return 0
	}
	if !d.Reset() {
		d.ResetSearch()
		return 0
	}
	d.WriteUint8(cmd)

	lastZero := 0
	// Bit positions are 1-based so that 0 means no discrepancy.
	for id := 1; id <= 64; id++ {
		idBit := d.ReadBit()
		cmpBit := d.ReadBit()
		if idBit && cmpBit {
			// Nobody answered; the devices went away mid-pass.
			d.logger.Debug("search aborted", "bit", id)
			d.ResetSearch()
			return 0
		}
		var branch bool
		if idBit != cmpBit {
			branch = idBit
		} else {
			// Devices with both values at this position.
			if id < d.lastDiscrepancy {
				branch = romBit(d.rom, id-1)
			} else {
				branch = id == d.lastDiscrepancy
			}
			if !branch {
				lastZero = id
			}
		}
		d.rom = setROMBit(d.rom, id-1, branch)
		d.WriteBit(branch)
	}

	d.lastDiscrepancy = lastZero
	if lastZero == 0 {
		d.lastDevice = true
	}
	if !d.validROM(d.rom) {
		d.logger.Warn("search returned an invalid address", "addr", fmt.Sprintf("%#016x", uint64(d.rom)))
		d.ResetSearch()
		return 0
	}
	d.trace("search", uint64(d.rom))
	return d.rom
}

// validROM rejects addresses with a null family code and, if configured, a
// CRC mismatch.
func (d *Dev) validROM(a onewire.Address) bool {
	if romByte(a, 0) == 0 {
		return false
	}
	if !d.opts.CheckROMCRC {
		return true
	}
	var b [8]byte
	for i := range b {
		b[i] = romByte(a, i)
	}
	return onewire.CheckCRC(b[:])
}

// romByte returns byte n of a, byte 0 being the family code.
func romByte(a onewire.Address, n int) byte {
	return byte(a >> (8 * n))
}

// romBit returns bit n of a, counting from the least significant bit of the
// family code.
func romBit(a onewire.Address, n int) bool {
	return a>>n&1 != 0
}

// setROMBit returns a with bit n set to v.
func setROMBit(a onewire.Address, n int, v bool) onewire.Address {
	if v {
		return a | 1<<n
	}
	return a &^ (1 << n)
}
