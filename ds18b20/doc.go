// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 interfaces to Dallas Semi / Maxim DS18B20 and DS18S20
// temperature sensors on any onewire.Bus, such as onewiregpio.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/ds18b20.pdf
package ds18b20
