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

package main

import (
	"sync"
	"time"

	"github.com/aamcrae/postcard/feeder"
)

// Geometry of the simulated feed path, in full motor steps from the entry slot.
const (
	cardLength = 230.0
	insertLead = 30.0 // Lead edge of a freshly inserted card
	pathEnd    = 260.0
)

var sensorAt = [4]float64{0, 20, 150, 200}

// Path simulates the scanner mechanism: the card, the four
// light barriers, the stepper and the capture light.
// A card is tracked by the position of its lead edge; moving forward
// increases it. A card leaving the end of the path is accepted, one
// leaving through the entry slot is returned.
type Path struct {
	mu        sync.Mutex
	clockwise bool    // Motor direction that moves a card forward
	speed     float64 // Motion time scale, 0 for no delay
	card      bool
	lead      float64
	moved     float64
	asleep    bool
	light     bool
	accepted  int
	returned  int
}

func NewPath(clockwise bool, speed float64) *Path {
	return &Path{clockwise: clockwise, speed: speed, asleep: true}
}

// Insert places a card in the entry slot. It returns false if
// a card is already in the path.
func (p *Path) Insert() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.card {
		return false
	}
	p.card = true
	p.lead = insertLead
	return true
}

// Loaded returns true if a card is in the path.
func (p *Path) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.card
}

// Counts returns the number of cards accepted and returned.
func (p *Path) Counts() (accepted, returned int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted, p.returned
}

// Sensor implements feeder.Sensors.
func (p *Path) Sensor(ch int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.card || ch < 0 || ch >= len(sensorAt) {
		return false
	}
	at := sensorAt[ch]
	return p.lead-cardLength <= at && at <= p.lead
}

// Step implements feeder.Actuator. A sleeping motor does not move the card.
func (p *Path) Step(clockwise bool, res feeder.Resolution, count int, delay time.Duration) {
	if count <= 0 {
		return
	}
	p.mu.Lock()
	if !p.asleep {
		d := float64(count) / float64(res.Divisor())
		if clockwise != p.clockwise {
			d = -d
		}
		p.moved += d
		if p.card {
			p.lead += d
			switch {
			case p.lead-cardLength > pathEnd:
				p.card = false
				p.accepted++
			case p.lead < 0:
				p.card = false
				p.returned++
			}
		}
	}
	speed := p.speed
	p.mu.Unlock()
	if speed > 0 {
		time.Sleep(time.Duration(float64(delay) * float64(count) * speed))
	}
}

func (p *Path) Sleep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asleep = true
}

func (p *Path) Active() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asleep = false
}

// Moved returns the total distance moved by the motor, in full steps.
func (p *Path) Moved() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moved
}

// On and Off implement feeder.Indicator.
func (p *Path) On() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.light = true
}

func (p *Path) Off() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.light = false
}

// Light returns the state of the capture light.
func (p *Path) Light() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.light
}
