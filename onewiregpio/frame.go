// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import "periph.io/x/conn/v3/onewire"

// WriteUint8 writes b, least significant bit first.
func (d *Dev) WriteUint8(b byte) {
	d.trace("write8", uint64(b))
	for i := 0; i < 8; i++ {
		d.WriteBit(b&(1<<i) != 0)
	}
}

// ReadUint8 reads a byte, least significant bit first.
func (d *Dev) ReadUint8() byte {
	var b byte
	for i := 0; i < 8; i++ {
		if d.ReadBit() {
			b |= 1 << i
		}
	}
	d.trace("read8", uint64(b))
	return b
}

// WriteUint64 writes v as 8 bytes, least significant byte first.
func (d *Dev) WriteUint64(v uint64) {
	d.trace("write64", v)
	for i := 0; i < 8; i++ {
		d.WriteUint8(byte(v >> (8 * i)))
	}
}

// ReadUint64 reads 8 bytes, least significant byte first.
func (d *Dev) ReadUint64() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(d.ReadUint8()) << (8 * i)
	}
	d.trace("read64", v)
	return v
}

// WriteBytes writes all of p.
func (d *Dev) WriteBytes(p []byte) {
	for _, b := range p {
		d.WriteUint8(b)
	}
}

// ReadBytes fills p with bytes read from the bus.
func (d *Dev) ReadBytes(p []byte) {
	for i := range p {
		p[i] = d.ReadUint8()
	}
}

// Select addresses the device with the given address for the commands that
// follow. It must be preceded by a successful Reset.
func (d *Dev) Select(addr onewire.Address) {
	d.trace("select", uint64(addr))
	d.WriteUint8(cmdMatchROM)
	d.WriteUint64(uint64(addr))
}

// Skip addresses all devices at once. It is only meaningful with a single
// device on the bus or for commands all devices can execute together, such
// as starting a temperature conversion.
func (d *Dev) Skip() {
	d.trace("skip", cmdSkipROM)
	d.WriteUint8(cmdSkipROM)
}

// ReadROM returns the address of the only device on the bus. With more than
// one device the result is the bitwise AND of their addresses.
func (d *Dev) ReadROM() onewire.Address {
	d.WriteUint8(cmdReadROM)
	return onewire.Address(d.ReadUint64())
}
