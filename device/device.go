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

// Package device connects the feeder to the scanner's GPIO hardware.

package device

import (
	"fmt"
	"log"
	"time"

	"github.com/aamcrae/postcard/feeder"
	"github.com/aamcrae/postcard/io"
)

// Device combines the sensors, stepper driver and capture light of
// the scanner, and implements the feeder's hardware interfaces.
// The feeder treats the hardware as infallible, so I/O errors are
// logged here and a failed sensor read reports the channel as clear.
type Device struct {
	Config  *DeviceConfig
	sensors [4]io.Getter
	driver  *io.Driver
	led     io.Setter
	res     feeder.Resolution // Resolution currently selected on the driver
	resOK   bool
	pins    []*io.Gpio
}

var (
	_ feeder.Sensors   = (*Device)(nil)
	_ feeder.Actuator  = (*Device)(nil)
	_ feeder.Indicator = (*Device)(nil)
)

// NewDevice opens the GPIOs described by the config.
func NewDevice(dc *DeviceConfig) (*Device, error) {
	modes, err := dc.modes()
	if err != nil {
		return nil, err
	}
	var pins []*io.Gpio
	fail := func(err error) (*Device, error) {
		for _, p := range pins {
			p.Close()
		}
		return nil, err
	}
	var sensors [4]io.Getter
	for i, g := range dc.Sensors {
		p, err := io.InputPin(g, dc.Invert)
		if err != nil {
			return fail(fmt.Errorf("sensor %d (GPIO %d): %v", i, g, err))
		}
		pins = append(pins, p)
		sensors[i] = p
	}
	out := func(name string, g int) (*io.Gpio, error) {
		p, err := io.OutputPin(g)
		if err != nil {
			return nil, fmt.Errorf("%s (GPIO %d): %v", name, g, err)
		}
		pins = append(pins, p)
		return p, nil
	}
	dir, err := out("direction", dc.Dir)
	if err != nil {
		return fail(err)
	}
	step, err := out("step", dc.Step)
	if err != nil {
		return fail(err)
	}
	sleep, err := out("sleep", dc.Sleep)
	if err != nil {
		return fail(err)
	}
	var mode []io.Setter
	for i, g := range dc.Mode {
		p, err := out(fmt.Sprintf("mode %d", i), g)
		if err != nil {
			return fail(err)
		}
		mode = append(mode, p)
	}
	led, err := out("led", dc.Led)
	if err != nil {
		return fail(err)
	}
	driver, err := io.NewDriver(modes, dir, step, sleep, mode...)
	if err != nil {
		return fail(err)
	}
	d := newDevice(sensors, driver, led)
	d.Config = dc
	d.pins = pins
	return d, nil
}

func newDevice(sensors [4]io.Getter, driver *io.Driver, led io.Setter) *Device {
	return &Device{sensors: sensors, driver: driver, led: led}
}

// Sensor reads one of the position sensors.
func (d *Device) Sensor(ch int) bool {
	if ch < 0 || ch >= len(d.sensors) {
		return false
	}
	v, err := d.sensors[ch].Get()
	if err != nil {
		log.Printf("device: sensor %d: %v", ch, err)
		return false
	}
	return v == 1
}

// Step moves the motor, selecting the resolution first if it has changed.
func (d *Device) Step(clockwise bool, res feeder.Resolution, count int, delay time.Duration) {
	if !d.resOK || d.res != res {
		if err := d.driver.SetResolution(int(res)); err != nil {
			log.Printf("device: resolution %s: %v", res, err)
			return
		}
		d.res = res
		d.resOK = true
	}
	if err := d.driver.Step(clockwise, count, delay); err != nil {
		log.Printf("device: step: %v", err)
	}
}

// Sleep removes power from the motor.
func (d *Device) Sleep() {
	if err := d.driver.Sleep(); err != nil {
		log.Printf("device: sleep: %v", err)
	}
}

// Active powers the motor.
func (d *Device) Active() {
	if err := d.driver.Active(); err != nil {
		log.Printf("device: wake: %v", err)
	}
}

// On turns the capture light on.
func (d *Device) On() {
	d.light(1)
}

// Off turns the capture light off.
func (d *Device) Off() {
	d.light(0)
}

func (d *Device) light(v int) {
	if d.led == nil {
		return
	}
	if err := d.led.Set(v); err != nil {
		log.Printf("device: led: %v", err)
	}
}

// Position returns the absolute motor position in microsteps.
func (d *Device) Position() int64 {
	return d.driver.GetStep()
}

// Close puts the motor to sleep, turns off the light and releases the GPIOs.
func (d *Device) Close() {
	d.Sleep()
	d.Off()
	for _, p := range d.pins {
		p.Close()
	}
	d.pins = nil
}
