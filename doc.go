// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire is a container for a 1-wire bus master bit-banged on a
// GPIO pin and the drivers of the devices found on such a bus.
//
// See the onewiregpio package for the bus master and ds18b20 for the
// temperature sensors.
package onewire
