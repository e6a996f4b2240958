// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// Family code of the specific device type
type Family byte

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	default:
		return "unknown"
	}
}

const DS18B20 Family = 0x28
const DS18S20 Family = 0x10

// Function commands, datasheet p.12.
const (
	cmdConvert         = 0x44
	cmdReadScratchpad  = 0xbe
	cmdWriteScratchpad = 0x4e
	cmdCopyScratchpad  = 0x48
)

// Scan searches the bus and returns the addresses of the DS18B20 and DS18S20
// devices found, in search order.
func Scan(o onewire.Bus) ([]onewire.Address, error) {
	all, err := o.Search(false)
	return Sensors(all), err
}

// Sensors returns the addresses of addrs that belong to a DS18B20 or DS18S20,
// keeping their order.
func Sensors(addrs []onewire.Address) []onewire.Address {
	var out []onewire.Address
	for _, a := range addrs {
		switch Family(a & 0xff) {
		case DS18B20, DS18S20:
			out = append(out, a)
		}
	}
	return out
}

// ConvertAll performs a conversion on all DS18B20 devices on the bus.
//
// During the conversion it places the bus in strong pull-up mode to power
// parasitic devices and returns when the conversions have completed. This time
// period is determined by the maximum resolution of all devices on the bus and
// must be provided.
//
// ConvertAll uses time.Sleep to wait for the conversion to finish, which takes
// from 94ms to 752ms.
func ConvertAll(o onewire.Bus, maxResolutionBits int) error {
	if maxResolutionBits < 9 || maxResolutionBits > 12 {
		return errors.New("ds18b20: invalid maxResolutionBits")
	}
	if err := StartAll(o); err != nil {
		return err
	}
	sleep(conversionTime(maxResolutionBits))
	return nil
}

// StartAll starts a conversion on all DS18B20 devices on the bus.
// Similar to ConvertAll but returns without waiting for conversion to finish.
// To be used in conjunction with LastTemp() function. Conversion timing must be
// handled by other means.
func StartAll(o onewire.Bus) error {
	return o.Tx([]byte{0xcc, cmdConvert}, nil, onewire.StrongPullup)
}

// New returns an object that communicates over 1-wire to the DS18B20 sensor
// with the specified 64-bit address.
//
// resolutionBits must be in the range 9..12 and determines how many bits of
// precision the readings have. The resolution affects the conversion time:
// 9bits:94ms, 10bits:188ms, 11bits:375ms, 12bits:750ms.
//
// A resolution of 10 bits corresponds to 0.25C and tends to be a good
// compromise between conversion time and the device's inherent accuracy of
// +/-0.5C.
func New(o onewire.Bus, addr onewire.Address, resolutionBits int) (*Dev, error) {
	if resolutionBits < 9 || resolutionBits > 12 {
		return nil, errors.New("ds18b20: invalid resolutionBits")
	}

	d := &Dev{onewire: onewire.Dev{Bus: o, Addr: addr}, resolution: resolutionBits}

	// Start by reading the scratchpad memory, this will tell us whether we can
	// talk to the device correctly and also how it's configured.
	spad, err := d.readScratchpad()
	if err != nil {
		return nil, err
	}

	// The DS18S20 has a fixed 9 bits resolution and no configuration register.
	if d.Family() == DS18S20 {
		return d, nil
	}

	// Change the resolution, if necessary (datasheet p.6).
	if int(spad[4]>>5) != resolutionBits-9 {
		// Set the value in the configuration register, keeping the alarm
		// thresholds.
		if err := d.onewire.Tx([]byte{cmdWriteScratchpad, spad[2], spad[3], byte((resolutionBits-9)<<5) | 0x1f}, nil); err != nil {
			return nil, err
		}
		// Copy the scratchpad to EEPROM to save the values.
		if err := d.onewire.TxPower([]byte{cmdCopyScratchpad}, nil); err != nil {
			return nil, err
		}
		// Wait for the write to complete.
		sleep(10 * time.Millisecond)
	}

	return d, nil
}

// Dev is a handle to a Dallas Semi / Maxim DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	onewire    onewire.Dev // device on 1-wire bus
	resolution int         // resolution in bits (9..12)

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) Family() Family {
	return Family(d.onewire.Addr & 0xFF)
}

func (d *Dev) String() string {
	return d.Family().String() + "{" + d.onewire.String() + "}"
}

// Halt implements conn.Resource.
//
// It stops a SenseContinuous in progress.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopContinuous()
	return nil
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.onewire.TxPower([]byte{cmdConvert}, nil); err != nil {
		return err
	}
	sleep(conversionTime(d.resolution))
	t, err := d.LastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// A conversion is started at every tick, so interval must be at least the
// conversion time for the configured resolution. Failed readings are
// skipped. Call Halt to stop; the channel is then closed.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if min := conversionTime(d.resolution); interval < min {
		return nil, fmt.Errorf("ds18b20: interval must be at least %s at %d bits", min, d.resolution)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopContinuous()
	stop := make(chan struct{})
	d.stop = stop
	ch := make(chan physic.Env)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
			}
			var e physic.Env
			if err := d.Sense(&e); err != nil {
				continue
			}
			select {
			case <-stop:
				return
			case ch <- e:
			}
		}
	}()
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

// LastTemp reads the temperature resulting from the last conversion from the
// device.
//
// It is useful in combination with ConvertAll.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	// Read the scratchpad memory.
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}

	c := d.parseTemperature(spad)

	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power. This prevents reading a temp of exactly 85°C,
	// but that seems like the right tradeoff.
	if c == 85*physic.Celsius+physic.ZeroCelsius {
		return 0, busError("ds18b20: has not performed a temperature conversion (insufficient pull-up?)")
	}

	return c, nil
}

// parseTemperature from scratchpad and handle special calculation for DS18S20
func (d *Dev) parseTemperature(spad []byte) physic.Temperature {
	// spad[1] is MSB and spad[0] is LSB of the raw temperature value
	rawTemp := int16(spad[1])<<8 | int16(spad[0])

	if d.Family() == DS18S20 && spad[7] != 0 {
		// TEMPERATURE = TEMP_READ - 0.25 + (COUNT_PER_C-COUNT_REMAIN)/COUNT_PER_C
		// with COUNT_PER_C = 16 = spad[7] and COUNT_REMAIN = spad[6], datasheet p.6.
		// In 1/16°C: truncate the 0.5°C bit, scale by 8, add 16-4 and remove
		// COUNT_REMAIN.
		rawTemp = ((rawTemp & int16(-2)) << 3) + 12 - int16(spad[6])
	}
	// rawTemp has 4 fractional bits. Need to do sign extension multiply by
	// 1000 to get Millis, divide by 16 due to 4 fractional bits. Datasheet p.4.
	v := physic.Temperature(rawTemp)
	return v*physic.Kelvin/16 + physic.ZeroCelsius
}

//

// stopContinuous ends the SenseContinuous goroutine. d.mu must be held.
func (d *Dev) stopContinuous() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	d.stop = nil
	d.wg.Wait()
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// conversionTime is the time a conversion takes, which depends on the
// resolution:
// 9bits:94ms, 10bits:188ms, 11bits:376ms, 12bits:752ms, datasheet p.6.
func conversionTime(bits int) time.Duration {
	return (94 << uint(bits-9)) * time.Millisecond
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
// It returns the 8 bytes of scratchpad data (excluding the CRC byte).
func (d *Dev) readScratchpad() ([]byte, error) {
	// Read the scratchpad memory.
	var spad [9]byte
	if err := d.onewire.Tx([]byte{cmdReadScratchpad}, spad[:]); err != nil {
		return nil, err
	}

	// Check the scratchpad CRC.
	if !onewire.CheckCRC(spad[:]) {
		for _, s := range spad {
			if s != 0xff {
				return nil, busError("ds18b20: incorrect scratchpad CRC")
			}
		}
		return nil, busError("ds18b20: device did not respond")
	}

	return spad[:8], nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
