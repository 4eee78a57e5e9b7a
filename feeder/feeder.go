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

// Feed-control state machine for the postcard scanner.

package feeder

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// Event records a change of position.
type Event struct {
	Time time.Time
	From Position
	To   Position
}

// Feeder drives a card through the scanner one tick at a time.
// The position and step counter are owned by the goroutine calling
// Advance (or Run); Accept and Reject may be called from any goroutine.
// The counter counts ticks spent in the current position and is reset
// on every change of position.
type Feeder struct {
	cfg      Config
	hw       Hardware
	pos      Position
	counter  uint32
	decision decisions
	listener func(Event)
	status   atomic.Int32 // Last status, published for other goroutines
}

// New creates a Feeder. The initial position is taken from the entry
// sensors: if a card is already in the path (e.g after a restart),
// the feeder starts by aligning it.
func New(cfg Config, hw Hardware) (*Feeder, error) {
	if hw.Sensors == nil || hw.Actuator == nil || hw.Camera == nil {
		return nil, errors.New("feeder: sensors, actuator and camera are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("feeder: %w", err)
	}
	if hw.Indicator == nil {
		hw.Indicator = nopIndicator{}
	}
	f := &Feeder{cfg: cfg, hw: hw}
	s := readSensors(hw.Sensors)
	if !s[0] && !s[1] {
		f.pos = Idle
		f.status.Store(int32(Enabled))
	} else {
		f.pos = Aligning
		f.status.Store(int32(Scanning))
	}
	log.Printf("feeder: starting in %s", f.pos)
	return f, nil
}

// SetListener registers a function called on every change of position.
// It runs on the goroutine driving Advance, and must be set before Run.
func (f *Feeder) SetListener(l func(Event)) {
	f.listener = l
}

// Accept latches an accept decision for the card awaiting a decision.
func (f *Feeder) Accept() {
	f.decision.accept()
}

// Reject latches a reject decision; the card will be returned.
func (f *Feeder) Reject() {
	f.decision.reject()
}

// Pending returns the latched decision flags.
func (f *Feeder) Pending() (accepted, rejected bool) {
	return f.decision.pending()
}

// Position returns the current position. Not safe for use
// concurrently with Advance.
func (f *Feeder) Position() Position {
	return f.pos
}

// Counter returns the ticks spent in the current position. Not safe for use
// concurrently with Advance.
func (f *Feeder) Counter() uint32 {
	return f.counter
}

// Status returns the status of the most recent tick.
func (f *Feeder) Status() Status {
	return Status(f.status.Load())
}

// Advance runs one tick of the feed sequence and returns the resulting status.
// Sensors are sampled once at the start of the tick.
func (f *Feeder) Advance() Status {
	s := readSensors(f.hw.Sensors)
	var st Status
	switch f.pos {
	case Idle:
		st = f.idle(s)
	case Feeding:
		st = f.feeding(s)
	case Aligning:
		st = f.aligning(s)
	case Capturing:
		st = f.capturing(s)
	case AwaitingDecision:
		st = f.awaiting(s)
	case Ejecting:
		st = f.ejecting(s)
	case Jammed:
		st = f.jammed(s)
	default:
		log.Printf("feeder: invalid position %d, resetting", f.pos)
		f.enter(Idle)
		st = Enabled
	}
	f.status.Store(int32(st))
	return st
}

func (f *Feeder) idle(s sensors) Status {
	if s[0] && s[1] {
		f.hw.Actuator.Active()
		f.enter(Feeding)
		return Scanning
	}
	f.hw.Actuator.Sleep()
	f.pause()
	return Enabled
}

// feeding pulls the card in until it reaches sensor 2. A card that is slow to
// arrive is nudged back and forward again, against the same tick budget.
func (f *Feeder) feeding(s sensors) Status {
	f.counter++
	f.forward(f.cfg.FeedResolution, f.cfg.FeedSteps, f.cfg.StepDelay)
	switch {
	case s[2]:
		f.enter(Aligning)
	case !s[0] || !s[1]:
		// Card pulled back out of the slot.
		f.enter(Idle)
	case f.counter > f.cfg.FeedTimeout:
		f.enter(Jammed)
	case f.counter > f.cfg.NudgeAfter:
		f.reverse(f.cfg.FeedResolution, f.cfg.NudgeSteps, f.cfg.StepDelay)
	}
	return Scanning
}

func (f *Feeder) aligning(s sensors) Status {
	f.counter++
	if f.counter > f.cfg.AlignTimeout {
		f.enter(Jammed)
		return Scanning
	}
	f.forward(f.cfg.FeedResolution, f.cfg.FeedSteps, f.cfg.StepDelay)
	switch {
	case s[3]:
		f.enter(Capturing)
	case !s[2]:
		f.enter(Feeding)
	}
	return Scanning
}

// capturing moves the card slowly until its trailing edge clears sensor 1,
// backs off slightly, and takes the picture.
func (f *Feeder) capturing(s sensors) Status {
	f.counter++
	if f.counter > f.cfg.CaptureTimeout {
		f.enter(Jammed)
		return Scanning
	}
	f.forward(f.cfg.FeedResolution, f.cfg.CaptureSteps, f.cfg.StepDelay)
	if !s[1] {
		f.reverse(f.cfg.FeedResolution, f.cfg.RetractSteps, f.cfg.StepDelay)
		f.hw.Actuator.Sleep()
		f.capture()
		f.enter(AwaitingDecision)
	}
	return Scanning
}

// awaiting parks the card until a decision arrives. Accept is checked
// first, so if both flags are latched the card is ejected. With no
// decision the card is ejected once the timeout expires.
func (f *Feeder) awaiting(s sensors) Status {
	f.counter++
	f.pause()
	if f.decision.takeAccept() || f.counter > f.cfg.DecisionTimeout {
		if f.counter > f.cfg.DecisionTimeout {
			log.Printf("feeder: no decision after %d ticks, ejecting", f.cfg.DecisionTimeout)
		}
		f.hw.Actuator.Active()
		f.enter(Ejecting)
	} else if f.decision.takeReject() {
		f.hw.Actuator.Active()
		f.reverse(f.cfg.EjectResolution, f.cfg.FlushSteps, f.cfg.FlushDelay)
		f.enter(Idle)
	}
	return Scanning
}

func (f *Feeder) ejecting(s sensors) Status {
	f.counter++
	if f.counter > f.cfg.EjectTimeout {
		f.enter(Jammed)
		return Scanning
	}
	f.forward(f.cfg.EjectResolution, f.cfg.EjectSteps, f.cfg.StepDelay)
	if !s[2] {
		f.forward(f.cfg.EjectResolution, f.cfg.FlushSteps, f.cfg.FlushDelay)
		f.hw.Actuator.Sleep()
		f.enter(Idle)
	}
	return Scanning
}

// jammed waits for the path to be cleared by hand.
func (f *Feeder) jammed(s sensors) Status {
	f.hw.Actuator.Sleep()
	if s.any() {
		f.pause()
		return Error
	}
	f.enter(Idle)
	return Enabled
}

// enter moves to a new position, resetting the counter. Entering Idle
// ends the card cycle, so any latched decision is dropped.
func (f *Feeder) enter(p Position) {
	from := f.pos
	if p == Jammed {
		log.Printf("feeder: jammed in %s after %d ticks", from, f.counter)
	}
	f.pos = p
	f.counter = 0
	if p == Idle {
		f.decision.clear()
	}
	if f.listener != nil {
		f.listener(Event{Time: time.Now(), From: from, To: p})
	}
}

// capture takes an image with the indicator lit. Failures are logged
// and never stop the feed sequence.
func (f *Feeder) capture() {
	f.hw.Indicator.On()
	defer f.hw.Indicator.Off()
	if err := f.acquire(); err != nil {
		log.Printf("feeder: capture failed: %v", err)
	}
}

func (f *Feeder) acquire() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	img, err := f.hw.Camera.Capture()
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if f.hw.Sink == nil {
		return nil
	}
	return f.hw.Sink(img)
}

func (f *Feeder) forward(res Resolution, steps int, delay time.Duration) {
	if steps > 0 {
		f.hw.Actuator.Step(f.cfg.Clockwise, res, steps, delay)
	}
}

func (f *Feeder) reverse(res Resolution, steps int, delay time.Duration) {
	if steps > 0 {
		f.hw.Actuator.Step(!f.cfg.Clockwise, res, steps, delay)
	}
}

func (f *Feeder) pause() {
	if f.cfg.Pause > 0 {
		time.Sleep(f.cfg.Pause)
	}
}

type nopIndicator struct{}

func (nopIndicator) On()  {}
func (nopIndicator) Off() {}
