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

package device

import (
	"fmt"
	"strings"

	"github.com/aamcrae/config"

	"github.com/aamcrae/postcard/io"
)

// DeviceConfig holds the GPIO assignments of the scanner hardware,
// read from a configuration file.
type DeviceConfig struct {
	Sensors [4]int // Sensors 0-3 along the feed path
	Invert  bool   // Sensors read low when blocked
	Dir     int
	Step    int
	Sleep   int
	Mode    [3]int // Microstep mode select M0-M2
	Driver  string // Driver chip, drv8825 or a4988
	Led     int
}

// DefaultConfig returns the pin assignments of the v3 scanner board.
func DefaultConfig() *DeviceConfig {
	return &DeviceConfig{
		Sensors: [4]int{16, 19, 20, 21},
		Dir:     4,
		Step:    17,
		Sleep:   23,
		Mode:    [3]int{22, 27, 18},
		Driver:  "drv8825",
		Led:     12,
	}
}

// Config reads and validates the device config from a config file section.
// Keys that are not present keep the default assignment.
// Sample config:
//  [device]
//  sensors=16,19,20,21   # GPIOs for sensors 0-3
//  invert=false          # true if the sensors read low when blocked
//  stepper=4,17,23       # GPIOs for direction, step and sleep
//  mode=22,27,18         # GPIOs for microstep mode select
//  driver=drv8825        # stepper driver chip (drv8825 or a4988)
//  led=12                # GPIO for capture light
func Config(conf *config.Config, name string) (*DeviceConfig, error) {
	d := DefaultConfig()
	s := conf.GetSection(name)
	if s == nil {
		return d, nil
	}
	if s.Has("sensors") {
		n, err := s.Parse("sensors", "%d,%d,%d,%d", &d.Sensors[0], &d.Sensors[1], &d.Sensors[2], &d.Sensors[3])
		if err != nil {
			return nil, fmt.Errorf("sensors: %v", err)
		}
		if n != 4 {
			return nil, fmt.Errorf("sensors: argument count")
		}
	}
	if a, err := s.GetArg("invert"); err == nil {
		switch strings.TrimSpace(a) {
		case "true", "1", "yes":
			d.Invert = true
		case "false", "0", "no":
			d.Invert = false
		default:
			return nil, fmt.Errorf("invert: %s: not a boolean", a)
		}
	}
	if s.Has("stepper") {
		n, err := s.Parse("stepper", "%d,%d,%d", &d.Dir, &d.Step, &d.Sleep)
		if err != nil {
			return nil, fmt.Errorf("stepper: %v", err)
		}
		if n != 3 {
			return nil, fmt.Errorf("stepper: argument count")
		}
	}
	if s.Has("mode") {
		n, err := s.Parse("mode", "%d,%d,%d", &d.Mode[0], &d.Mode[1], &d.Mode[2])
		if err != nil {
			return nil, fmt.Errorf("mode: %v", err)
		}
		if n != 3 {
			return nil, fmt.Errorf("mode: argument count")
		}
	}
	if a, err := s.GetArg("driver"); err == nil {
		d.Driver = strings.ToLower(strings.TrimSpace(a))
	}
	if s.Has("led") {
		n, err := s.Parse("led", "%d", &d.Led)
		if err != nil {
			return nil, fmt.Errorf("led: %v", err)
		}
		if n != 1 {
			return nil, fmt.Errorf("led: argument count")
		}
	}
	if _, err := d.modes(); err != nil {
		return nil, err
	}
	return d, d.check()
}

// modes returns the microstep table for the configured driver chip.
func (d *DeviceConfig) modes() ([]int, error) {
	switch d.Driver {
	case "drv8825":
		return io.DRV8825, nil
	case "a4988":
		return io.A4988, nil
	}
	return nil, fmt.Errorf("driver: %s: unknown driver chip", d.Driver)
}

// check verifies that no GPIO is assigned twice.
func (d *DeviceConfig) check() error {
	used := make(map[int]string)
	add := func(name string, g int) error {
		if g < 0 {
			return fmt.Errorf("%s: invalid GPIO %d", name, g)
		}
		if other, ok := used[g]; ok {
			return fmt.Errorf("GPIO %d assigned to both %s and %s", g, other, name)
		}
		used[g] = name
		return nil
	}
	for i, g := range d.Sensors {
		if err := add(fmt.Sprintf("sensor %d", i), g); err != nil {
			return err
		}
	}
	for i, g := range d.Mode {
		if err := add(fmt.Sprintf("mode %d", i), g); err != nil {
			return err
		}
	}
	for _, p := range []struct {
		name string
		g    int
	}{{"direction", d.Dir}, {"step", d.Step}, {"sleep", d.Sleep}, {"led", d.Led}} {
		if err := add(p.name, p.g); err != nil {
			return err
		}
	}
	return nil
}
