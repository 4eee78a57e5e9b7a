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

package feeder

import (
	"io"
	"time"
)

// Sensors reads the binary position channels along the feed path.
// Channels 0 and 1 are at the entry slot, 2 is past the feed roller,
// and 3 marks the imaging station.
type Sensors interface {
	Sensor(channel int) bool
}

// Actuator drives the feed stepper motor.
// Step blocks until count steps have been issued.
type Actuator interface {
	Step(clockwise bool, res Resolution, count int, delay time.Duration)
	Sleep()  // remove holding torque
	Active() // enable driver, holding torque applied
}

// Indicator is the light used to illuminate the card while capturing.
type Indicator interface {
	On()
	Off()
}

// Camera acquires a single image.
type Camera interface {
	Capture() (io.Reader, error)
}

// Sink consumes one captured image.
type Sink func(io.Reader) error

// Hardware groups the injected dependencies of a Feeder.
// The Feeder does not own their lifecycle.
type Hardware struct {
	Sensors   Sensors
	Actuator  Actuator
	Indicator Indicator
	Camera    Camera
	Sink      Sink
}

// sensors is a snapshot of the four channels taken at the top of a tick.
type sensors [4]bool

func readSensors(s Sensors) sensors {
	var r sensors
	for i := range r {
		r[i] = s.Sensor(i)
	}
	return r
}

func (s sensors) any() bool {
	return s[0] || s[1] || s[2] || s[3]
}
