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

// Program to demonstrate driving the stepper through the step/dir driver.

package main

import (
	"flag"
	"log"
	"time"

	"github.com/aamcrae/postcard/io"
)

var dirPin = flag.Int("dir", 4, "GPIO pin for driver direction")
var stepPin = flag.Int("step", 17, "GPIO pin for driver step")
var sleepPin = flag.Int("sleep", 23, "GPIO pin for driver sleep")
var modePins = []*int{
	flag.Int("m0", 22, "GPIO pin for mode select 0"),
	flag.Int("m1", 27, "GPIO pin for mode select 1"),
	flag.Int("m2", 18, "GPIO pin for mode select 2"),
}
var resolution = flag.Int("resolution", 1, "Resolution index (0 = full, 1 = half, ... 5 = 1/32)")
var steps = flag.Int("steps", 400, "Steps")
var delay = flag.Duration("delay", 300*time.Microsecond, "Step pulse delay")

func output(gpio int) *io.Gpio {
	p, err := io.OutputPin(gpio)
	if err != nil {
		log.Fatalf("Pin %d: %v", gpio, err)
	}
	return p
}

func main() {
	flag.Parse()
	dir := output(*dirPin)
	defer dir.Close()
	step := output(*stepPin)
	defer step.Close()
	sleep := output(*sleepPin)
	defer sleep.Close()
	var mode []io.Setter
	for _, gp := range modePins {
		p := output(*gp)
		defer p.Close()
		mode = append(mode, p)
	}
	drv, err := io.NewDriver(io.DRV8825, dir, step, sleep, mode...)
	if err != nil {
		log.Fatalf("Driver: %v", err)
	}
	if err := drv.SetResolution(*resolution); err != nil {
		log.Fatalf("Resolution: %v", err)
	}
	if err := drv.Active(); err != nil {
		log.Fatalf("Wake: %v", err)
	}
	defer drv.Sleep()
	now := time.Now()
	st := *steps
	for i := 0; i < 4; i++ {
		if err := drv.Step(st > 0, abs(st), *delay); err != nil {
			log.Fatalf("Step: %v", err)
		}
		st = -st
	}
	log.Printf("Elapsed = %s, position = %d\n", time.Since(now), drv.GetStep())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
