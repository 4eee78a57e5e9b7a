// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package io

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Microstep mode pin settings (M0, M1, M2 as bits 0-2) indexed by
// resolution: full, 1/2, 1/4, 1/8, 1/16, 1/32. A negative value
// marks a resolution the chip does not support.
var (
	DRV8825 = []int{0, 1, 2, 3, 4, 5}
	A4988   = []int{0, 1, 2, 3, 7, -1}
)

// Driver represents a step/direction stepper driver chip, such as
// a DRV8825 or A4988. Each call to Step blocks until the
// steps have been sent.
// The current step number is maintained as an absolute number of
// microsteps, referenced from 0 when the driver is created.
type Driver struct {
	dir, step Setter   // Direction and step pulse outputs
	sleep     Setter   // Active high enable (nSLEEP); may be nil
	mode      []Setter // Microstep mode outputs; may be empty
	modes     []int    // Mode pin settings per resolution
	current   int64    // Current microstep number
}

// NewDriver creates a Driver. modes is the chip's resolution table
// (e.g DRV8825), and mode holds up to 3 mode select outputs.
func NewDriver(modes []int, dir, step, sleep Setter, mode ...Setter) (*Driver, error) {
	if len(mode) > 3 {
		return nil, fmt.Errorf("driver: %d mode pins, maximum is 3", len(mode))
	}
	if dir == nil || step == nil {
		return nil, fmt.Errorf("driver: direction and step outputs are required")
	}
	d := new(Driver)
	d.dir = dir
	d.step = step
	d.sleep = sleep
	d.mode = mode
	d.modes = modes
	return d, nil
}

// SetResolution selects the microstep resolution, as an index into
// the chip's resolution table.
func (d *Driver) SetResolution(r int) error {
	if r < 0 || r >= len(d.modes) || d.modes[r] < 0 {
		return fmt.Errorf("driver: resolution %d not supported", r)
	}
	bits := d.modes[r]
	if len(d.mode) == 0 {
		if bits != 0 {
			return fmt.Errorf("driver: no mode pins to select resolution %d", r)
		}
		return nil
	}
	for i, p := range d.mode {
		if err := p.Set((bits >> uint(i)) & 1); err != nil {
			return err
		}
	}
	return nil
}

// Step sends count step pulses in the selected direction, with delay
// as the high and low time of each pulse.
func (d *Driver) Step(clockwise bool, count int, delay time.Duration) error {
	inc := int64(-1)
	dv := 0
	if clockwise {
		inc = 1
		dv = 1
	}
	if err := d.dir.Set(dv); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := d.step.Set(1); err != nil {
			return err
		}
		time.Sleep(delay)
		if err := d.step.Set(0); err != nil {
			return err
		}
		time.Sleep(delay)
		atomic.AddInt64(&d.current, inc)
	}
	return nil
}

// GetStep returns the current step number, which is an accumulative
// signed value representing the microsteps moved, with 0 as the starting location.
func (d *Driver) GetStep() int64 {
	return atomic.LoadInt64(&d.current)
}

// Sleep puts the driver into low power mode, removing holding torque.
func (d *Driver) Sleep() error {
	if d.sleep == nil {
		return nil
	}
	return d.sleep.Set(0)
}

// Active wakes the driver so that the motor holds position.
func (d *Driver) Active() error {
	if d.sleep == nil {
		return nil
	}
	err := d.sleep.Set(1)
	// The DRV8825 needs up to 1.7ms after wakeup before accepting steps.
	time.Sleep(2 * time.Millisecond)
	return err
}
