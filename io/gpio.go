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
	"os"

	"golang.org/x/sys/unix"
)

// Direction
const (
	IN  = iota // Default
	OUT = iota
)

// Edge
const (
	NONE    = iota // Default
	RISING  = iota
	FALLING = iota
	BOTH    = iota
)

const (
	baseDir      = "/sys/class/gpio/"
	exportFile   = baseDir + "export"
	unexportFile = baseDir + "unexport"
)

// Gpio represents one GPIO pin.
// An inverted pin reports and accepts logical values, so that
// an active low sensor reads 1 when it is blocked.
type Gpio struct {
	number    int
	value     *os.File
	buf       []byte
	direction int
	edge      int
	invert    bool
	pollfd    []unix.PollFd
}

// OutputPin opens a GPIO pin and sets the direction as OUTPUT,
// initially driven low.
func OutputPin(gpio int) (*Gpio, error) {
	g, err := Pin(gpio)
	if err != nil {
		return nil, err
	}
	if err := g.Direction(OUT); err != nil {
		g.Close()
		return nil, err
	}
	if err := g.Set(0); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// InputPin opens a GPIO pin as an input, optionally inverting the value read.
func InputPin(gpio int, invert bool) (*Gpio, error) {
	g, err := Pin(gpio)
	if err != nil {
		return nil, err
	}
	g.invert = invert
	return g, nil
}

// Pin opens a GPIO pin as an input (by default)
func Pin(gpio int) (*Gpio, error) {
	g := new(Gpio)
	g.number = gpio
	g.buf = make([]byte, 1)

	val := g.file("value")
	if err := export(gpio); err != nil {
		return nil, fmt.Errorf("gpio%d: export: %v", gpio, err)
	}
	if err := g.Direction(IN); err != nil {
		unexport(gpio)
		return nil, err
	}
	if err := g.Edge(NONE); err != nil {
		unexport(gpio)
		return nil, err
	}
	var err error
	g.value, err = os.OpenFile(val, os.O_RDWR, 0600)
	if err != nil {
		unexport(gpio)
		return nil, err
	}
	g.pollfd = []unix.PollFd{{Fd: int32(g.value.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	return g, nil
}

func (g *Gpio) file(name string) string {
	return fmt.Sprintf("%sgpio%d/%s", baseDir, g.number, name)
}

// Number returns the GPIO number of the pin.
func (g *Gpio) Number() int {
	return g.number
}

// Direction sets the mode (direction) of the GPIO pin.
func (g *Gpio) Direction(d int) error {
	var s string
	switch d {
	case IN:
		s = "in"
	case OUT:
		s = "out"
	default:
		return fmt.Errorf("gpio%d: unknown direction", g.number)
	}
	err := writeFile(g.file("direction"), s)
	if err == nil {
		g.direction = d
	}
	return err
}

// Edge sets the edge detection on the GPIO pin.
// With edge detection enabled, Get blocks until the edge occurs.
func (g *Gpio) Edge(e int) error {
	if g.direction != IN {
		return fmt.Errorf("gpio%d: not set as an input pin", g.number)
	}
	var s string
	switch e {
	case NONE:
		s = "none"
	case RISING:
		s = "rising"
	case FALLING:
		s = "falling"
	case BOTH:
		s = "both"
	default:
		return fmt.Errorf("gpio%d: unknown edge", g.number)
	}
	err := writeFile(g.file("edge"), s)
	if err == nil {
		g.edge = e
	}
	return err
}

// Set the output of the GPIO pin (only valid for OUTPUT pins)
func (g *Gpio) Set(v int) error {
	if g.direction != OUT {
		return fmt.Errorf("gpio%d: is not output", g.number)
	}
	if v != 0 && v != 1 {
		return fmt.Errorf("gpio%d: illegal value %d", g.number, v)
	}
	if g.invert {
		v ^= 1
	}
	g.buf[0] = '0' + byte(v)
	_, err := g.value.WriteAt(g.buf, 0)
	return err
}

// Get returns the current value of the GPIO pin.
func (g *Gpio) Get() (int, error) {
	if g.edge != NONE {
		// Wait for edge using poll.
		g.pollfd[0].Revents = 0
		if _, err := unix.Poll(g.pollfd, -1); err != nil {
			return 0, err
		}
	}
	if _, err := g.value.ReadAt(g.buf, 0); err != nil {
		return 0, err
	}
	var v int
	switch g.buf[0] {
	case '0':
		v = 0
	case '1':
		v = 1
	default:
		return 0, fmt.Errorf("gpio%d: unknown value %q", g.number, g.buf)
	}
	if g.invert {
		v ^= 1
	}
	return v, nil
}

// Close the GPIO pin and unexport it.
func (g *Gpio) Close() {
	if g.value != nil {
		g.value.Close()
	}
	unexport(g.number)
}
