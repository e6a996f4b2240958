// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/onewire/onewiregpio"
	"github.com/GermanBionicSystems/onewire/onewiregpio/onewiregpiotest"
)

// scratchpad returns the 9 bytes of scratchpad of a device reading c at the
// given resolution.
func scratchpad(c float64, bits int) []byte {
	raw := int16(c * 16)
	s := []byte{byte(raw), byte(raw >> 8), 0x4b, 0x46, byte((bits-9)<<5) | 0x1f, 0xff, 0x08, 0x10}
	return append(s, onewire.CalcCRC(s))
}

func newBus(t *testing.T, devs ...*onewiregpiotest.Device) *onewiregpio.Dev {
	t.Helper()
	sim := onewiregpiotest.NewBus(devs...)
	opts := onewiregpio.DefaultOpts
	opts.Clock = sim
	opts.Critical = func() func() { return func() {} }
	bus, err := onewiregpio.New(sim, &opts)
	if err != nil {
		t.Fatal(err)
	}
	return bus
}

func TestScan_gpio(t *testing.T) {
	a := &onewiregpiotest.Device{Addr: onewiregpiotest.ROM(byte(DS18B20), 0x070e41ac)}
	b := &onewiregpiotest.Device{Addr: onewiregpiotest.ROM(0x01, 0x1234)}
	c := &onewiregpiotest.Device{Addr: onewiregpiotest.ROM(byte(DS18S20), 0x0203)}
	bus := newBus(t, a, b, c)

	addrs, err := Scan(bus)
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 sensors, got %#x", addrs)
	}
	for _, s := range addrs {
		if s != a.Addr && s != c.Addr {
			t.Fatalf("unexpected address %#016x", uint64(s))
		}
	}

	addrs, err = Scan(newBus(t))
	if err != nil || len(addrs) != 0 {
		t.Fatalf("empty bus: %#x, %v", addrs, err)
	}
}

func TestSensors(t *testing.T) {
	in := []onewire.Address{0x740000070e41ac28, 0x0a00000012345601, 0x4900000001020310}
	want := []onewire.Address{0x740000070e41ac28, 0x4900000001020310}
	if got := Sensors(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#x, want %#x", got, want)
	}
	if got := Sensors(nil); len(got) != 0 {
		t.Fatal(got)
	}
}

func TestSense_gpio(t *testing.T) {
	dev := &onewiregpiotest.Device{
		Addr:   onewiregpiotest.ROM(byte(DS18B20), 0x070e41ac),
		Memory: map[byte][]byte{cmdReadScratchpad: scratchpad(21.5, 9)},
	}
	d, err := New(newBus(t, dev), dev.Addr, 9)
	if err != nil {
		t.Fatal(err)
	}
	var e physic.Env
	if err := d.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if c := e.Temperature.Celsius(); c != 21.5 {
		t.Errorf("expected 21.5°C, got %f", c)
	}
	want := [][]byte{{cmdReadScratchpad}, {cmdConvert}, {cmdReadScratchpad}}
	if w := dev.Written(); !reflect.DeepEqual(w, want) {
		t.Errorf("unexpected commands %#v", w)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_gpio_resolution(t *testing.T) {
	spad := scratchpad(20, 9)
	dev := &onewiregpiotest.Device{
		Addr:   onewiregpiotest.ROM(byte(DS18B20), 1),
		Memory: map[byte][]byte{cmdReadScratchpad: spad},
	}
	if _, err := New(newBus(t, dev), dev.Addr, 12); err != nil {
		t.Fatal(err)
	}
	w := dev.Written()
	if len(w) != 3 {
		t.Fatalf("unexpected commands %#v", w)
	}
	// Alarm thresholds kept, configuration set to 12 bits.
	if !bytes.Equal(w[1], []byte{cmdWriteScratchpad, spad[2], spad[3], 0x7f}) {
		t.Errorf("unexpected write scratchpad %#v", w[1])
	}
	if !bytes.Equal(w[2], []byte{cmdCopyScratchpad}) {
		t.Errorf("unexpected copy scratchpad %#v", w[2])
	}
}

func TestConvertAll_gpio(t *testing.T) {
	a := &onewiregpiotest.Device{Addr: onewiregpiotest.ROM(byte(DS18B20), 1)}
	b := &onewiregpiotest.Device{Addr: onewiregpiotest.ROM(byte(DS18B20), 2)}
	if err := ConvertAll(newBus(t, a, b), 9); err != nil {
		t.Fatal(err)
	}
	want := [][]byte{{cmdConvert}}
	if !reflect.DeepEqual(a.Written(), want) || !reflect.DeepEqual(b.Written(), want) {
		t.Errorf("unexpected commands %#v %#v", a.Written(), b.Written())
	}
}

func TestLastTemp_gpio_noResponse(t *testing.T) {
	dev := &onewiregpiotest.Device{Addr: onewiregpiotest.ROM(byte(DS18B20), 1)}
	d := &Dev{onewire: onewire.Dev{Bus: newBus(t, dev), Addr: dev.Addr}, resolution: 9}

	_, err := d.LastTemp()
	if err == nil || !strings.Contains(err.Error(), "did not respond") {
		t.Fatalf("unexpected error %v", err)
	}
	var be onewire.BusError
	if !errors.As(err, &be) || !be.BusError() {
		t.Fatal("expected a bus error")
	}
}

func TestLastTemp_gpio_powerOnValue(t *testing.T) {
	// 85°C is what the device holds until a conversion completed.
	spad := []byte{0x50, 0x05, 0x4b, 0x46, 0x3f, 0xff, 0x10, 0x10}
	dev := &onewiregpiotest.Device{
		Addr:   onewiregpiotest.ROM(byte(DS18B20), 1),
		Memory: map[byte][]byte{cmdReadScratchpad: append(spad, onewire.CalcCRC(spad))},
	}
	d := &Dev{onewire: onewire.Dev{Bus: newBus(t, dev), Addr: dev.Addr}, resolution: 10}

	c, err := d.LastTemp()
	if err == nil || !strings.Contains(err.Error(), "has not performed a temperature conversion") {
		t.Fatalf("expected an error, got %s, %v", c, err)
	}
	var be onewire.BusError
	if !errors.As(err, &be) || !be.BusError() {
		t.Fatal("expected a bus error")
	}
	if c != 0 {
		t.Fatalf("expected no temperature, got %s", c)
	}
}

func TestSenseContinuous_gpio(t *testing.T) {
	dev := &onewiregpiotest.Device{
		Addr:   onewiregpiotest.ROM(byte(DS18B20), 0x42),
		Memory: map[byte][]byte{cmdReadScratchpad: scratchpad(-10.125, 9)},
	}
	d, err := New(newBus(t, dev), dev.Addr, 9)
	if err != nil {
		t.Fatal(err)
	}

	ch, err := d.SenseContinuous(conversionTime(9))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			if c := e.Temperature.Celsius(); c != -10.125 {
				t.Errorf("expected -10.125°C, got %f", c)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no reading")
		}
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	for range ch {
	}
	// Halt is idempotent.
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}
