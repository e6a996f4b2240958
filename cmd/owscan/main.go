// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owscan enumerates the devices of a 1-wire bus bit-banged on a GPIO pin and
// optionally reads the DS18B20 temperature sensors found.
//
// Example config:
//
//	bus:
//	  pin: GPIO4
//	  timing: fast
//	  check_crc: true
//	ds18b20:
//	  enabled: true
//	  resolution: 10
//	log:
//	  level: debug
//	interval: 10s
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/onewire/ds18b20"
	"github.com/GermanBionicSystems/onewire/onewiregpio"
)

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	pin := flag.String("pin", "", "GPIO pin connected to the data line")
	fast := flag.Bool("fast", false, "use the timing profile for pins that switch without delay")
	crc := flag.Bool("crc", false, "reject addresses with an invalid CRC byte")
	temp := flag.Bool("temp", false, "read the DS18B20 temperature sensors")
	resolution := flag.Int("resolution", 0, "DS18B20 resolution in bits")
	interval := flag.Duration("interval", 0, "scan repeatedly at this interval")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	cfg := defaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = loadConfig(*cfgPath); err != nil {
			return err
		}
	}
	// Flags explicitly set override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pin":
			cfg.Bus.Pin = *pin
		case "fast":
			if *fast {
				cfg.Bus.Timing = "fast"
			} else {
				cfg.Bus.Timing = "default"
			}
		case "crc":
			cfg.Bus.CheckCRC = *crc
		case "temp":
			cfg.DS18B20.Enabled = *temp
		case "resolution":
			cfg.DS18B20.Resolution = *resolution
		case "interval":
			cfg.Interval = *interval
		case "v":
			if *verbose {
				cfg.Log.Level = "debug"
			}
		}
	})
	if err := cfg.validate(); err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log)

	if _, err := host.Init(); err != nil {
		return err
	}
	p := gpioreg.ByName(cfg.Bus.Pin)
	if p == nil {
		return fmt.Errorf("failed to find pin %q", cfg.Bus.Pin)
	}
	opts, _ := cfg.timing()
	opts.Logger = logger
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		opts.Trace = func(op string, v uint64) {
			logger.Debug("frame", "op", op, "value", fmt.Sprintf("%#x", v))
		}
	}
	bus, err := onewiregpio.New(p, &opts)
	if err != nil {
		return err
	}
	defer bus.Halt()
	logger.Info("bus ready", "bus", bus.String(), "timing", cfg.Bus.Timing)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sc := newScanner(bus, &cfg, logger)
	for {
		if err := sc.scan(os.Stdout); err != nil {
			return err
		}
		if cfg.Interval == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Interval):
		}
	}
}

// scanner enumerates the bus and reads the DS18B20 found.
//
// Sensors are opened once, when first seen, so their resolution is set before
// any conversion is started.
type scanner struct {
	bus     onewire.Bus
	cfg     *Config
	logger  *slog.Logger
	sensors map[onewire.Address]*ds18b20.Dev
}

func newScanner(bus onewire.Bus, cfg *Config, logger *slog.Logger) *scanner {
	return &scanner{bus: bus, cfg: cfg, logger: logger, sensors: map[onewire.Address]*ds18b20.Dev{}}
}

// scan prints the devices on the bus then the temperature of each DS18B20.
func (s *scanner) scan(w io.Writer) error {
	addrs, err := s.bus.Search(false)
	if err != nil {
		return err
	}
	s.logger.Debug("search done", "devices", len(addrs))
	for _, a := range addrs {
		fmt.Fprintf(w, "%#016x %s\n", uint64(a), ds18b20.Family(a&0xff))
	}
	if !s.cfg.DS18B20.Enabled {
		return nil
	}
	var devs []*ds18b20.Dev
	for _, a := range ds18b20.Sensors(addrs) {
		d, err := s.open(a)
		if err != nil {
			s.logger.Error("failed to open sensor", "addr", fmt.Sprintf("%#016x", uint64(a)), "err", err)
			continue
		}
		devs = append(devs, d)
	}
	if len(devs) == 0 {
		s.logger.Warn("no DS18B20 found")
		return nil
	}
	if err := ds18b20.ConvertAll(s.bus, s.cfg.DS18B20.Resolution); err != nil {
		return err
	}
	for _, d := range devs {
		t, err := d.LastTemp()
		if err != nil {
			s.logger.Error("failed to read sensor", "sensor", d.String(), "err", err)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", d, t)
	}
	return nil
}

// open returns the cached sensor at a, opening it on first use.
func (s *scanner) open(a onewire.Address) (*ds18b20.Dev, error) {
	if d, ok := s.sensors[a]; ok {
		return d, nil
	}
	d, err := ds18b20.New(s.bus, a, s.cfg.DS18B20.Resolution)
	if err != nil {
		return nil, err
	}
	s.sensors[a] = d
	return d, nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "owscan: %s.\n", err)
		os.Exit(1)
	}
}
