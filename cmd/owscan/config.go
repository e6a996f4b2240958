// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GermanBionicSystems/onewire/onewiregpio"
)

// Config is the content of the YAML file passed with -config.
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	DS18B20 DS18B20Config `yaml:"ds18b20"`
	Log     LogConfig     `yaml:"log"`
	// Interval between two scans. Zero scans once.
	Interval time.Duration `yaml:"interval"`
}

type BusConfig struct {
	Pin      string `yaml:"pin"`       // periph pin name, e.g. GPIO4
	Timing   string `yaml:"timing"`    // "default" or "fast"
	CheckCRC bool   `yaml:"check_crc"` // reject addresses with a bad CRC byte
}

type DS18B20Config struct {
	Enabled    bool `yaml:"enabled"`
	Resolution int  `yaml:"resolution"` // bits, 9..12
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // auto, console or json
}

func defaultConfig() Config {
	return Config{
		Bus:     BusConfig{Pin: "GPIO4", Timing: "default"},
		DS18B20: DS18B20Config{Resolution: 10},
		Log:     LogConfig{Level: "info", Format: "auto"},
	}
}

// loadConfig reads path on top of the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// validate checks the configuration. It does not modify it.
func (c *Config) validate() error {
	if c.Bus.Pin == "" {
		return errors.New("bus.pin is required")
	}
	if _, err := c.timing(); err != nil {
		return err
	}
	if c.DS18B20.Enabled && (c.DS18B20.Resolution < 9 || c.DS18B20.Resolution > 12) {
		return fmt.Errorf("ds18b20.resolution must be within 9..12, got %d", c.DS18B20.Resolution)
	}
	if c.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("log.format must be auto, console or json, got %q", c.Log.Format)
	}
	return nil
}

// timing returns the bus options for the configured timing profile.
func (c *Config) timing() (onewiregpio.Opts, error) {
	var opts onewiregpio.Opts
	switch c.Bus.Timing {
	case "", "default":
		opts = onewiregpio.DefaultOpts
	case "fast":
		opts = onewiregpio.FastPinOpts
	default:
		return opts, fmt.Errorf("bus.timing must be default or fast, got %q", c.Bus.Timing)
	}
	opts.CheckROMCRC = c.Bus.CheckCRC
	return opts, nil
}
