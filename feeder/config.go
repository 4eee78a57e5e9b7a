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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aamcrae/config"
)

// Resolution is the microstep mode used for a move.
type Resolution int

const (
	Full Resolution = iota
	Half
	Quarter
	Eighth
	Sixteenth
	ThirtySecond
)

var resolutionNames = []string{"full", "half", "1/4", "1/8", "1/16", "1/32"}

func (r Resolution) String() string {
	if r < 0 || int(r) >= len(resolutionNames) {
		return "unknown"
	}
	return resolutionNames[r]
}

// Divisor returns the number of microsteps per full step.
func (r Resolution) Divisor() int {
	return 1 << uint(r)
}

// ParseResolution converts a name such as "half" or "1/8" to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range resolutionNames {
		if s == n {
			return Resolution(i), nil
		}
	}
	return Full, fmt.Errorf("%s: unknown step resolution", s)
}

// Config holds the tunables of the feed sequence. Batch sizes are
// in steps at the selected resolution, timeouts are in ticks.
type Config struct {
	Clockwise       bool          // Rotation that moves the card into the machine
	FeedResolution  Resolution    // Resolution for feeding, aligning and capturing
	EjectResolution Resolution    // Resolution for ejecting and returning
	StepDelay       time.Duration // Per-step delay for normal moves
	FlushDelay      time.Duration // Per-step delay when clearing a card from the path
	Pause           time.Duration // Sleep per tick while idle, jammed or waiting

	FeedSteps    int // Forward batch while feeding and aligning
	NudgeSteps   int // Reverse batch to jog a slow card
	CaptureSteps int // Forward batch while looking for the card edge
	RetractSteps int // Reverse batch before capturing
	EjectSteps   int // Forward batch while ejecting
	FlushSteps   int // Final eject or return of the card

	NudgeAfter      uint32 // Feeding ticks before nudging back
	FeedTimeout     uint32
	AlignTimeout    uint32
	CaptureTimeout  uint32
	DecisionTimeout uint32 // Ticks before a card is accepted by default
	EjectTimeout    uint32
}

// DefaultConfig returns the tunables for the v3 feed mechanism.
func DefaultConfig() Config {
	return Config{
		Clockwise:       false,
		FeedResolution:  Half,
		EjectResolution: Half,
		StepDelay:       300 * time.Microsecond,
		FlushDelay:      80 * time.Microsecond,
		Pause:           100 * time.Millisecond,
		FeedSteps:       100,
		NudgeSteps:      100,
		CaptureSteps:    10,
		RetractSteps:    40,
		EjectSteps:      200,
		FlushSteps:      3000,
		NudgeAfter:      50,
		FeedTimeout:     80,
		AlignTimeout:    100,
		CaptureTimeout:  100,
		DecisionTimeout: 1200,
		EjectTimeout:    50,
	}
}

// Validate checks the tunables are usable.
func (c *Config) Validate() error {
	for _, v := range []struct {
		name  string
		steps int
	}{
		{"feed", c.FeedSteps},
		{"nudge", c.NudgeSteps},
		{"capture", c.CaptureSteps},
		{"retract", c.RetractSteps},
		{"eject", c.EjectSteps},
		{"flush", c.FlushSteps},
	} {
		if v.steps < 0 {
			return fmt.Errorf("%s: negative step count %d", v.name, v.steps)
		}
	}
	if c.NudgeAfter > c.FeedTimeout {
		return fmt.Errorf("nudge threshold %d exceeds feed timeout %d", c.NudgeAfter, c.FeedTimeout)
	}
	if c.StepDelay < 0 || c.FlushDelay < 0 || c.Pause < 0 {
		return fmt.Errorf("negative delay")
	}
	return nil
}

// ParseConfig reads feeder tunables from a config file section.
// Every key is optional, and a missing section yields the defaults.
// Sample config:
//  [feeder]
//  clockwise=false         # rotation that feeds the card in
//  resolution=half,half    # feed and eject step resolution
//  delay=300us,80us        # step delay, flush step delay
//  pause=100ms             # idle/wait pause per tick
//  feed=100,100            # feed batch, nudge batch
//  capture=10,40           # capture batch, retract batch
//  eject=200,3000          # eject batch, flush batch
//  timeouts=50,80,100,100,1200,50 # nudge, feed, align, capture, decision, eject
func ParseConfig(conf *config.Config, name string) (Config, error) {
	c := DefaultConfig()
	s := conf.GetSection(name)
	if s == nil {
		return c, nil
	}
	if a, err := s.GetArg("clockwise"); err == nil {
		c.Clockwise, err = strconv.ParseBool(strings.TrimSpace(a))
		if err != nil {
			return c, fmt.Errorf("clockwise: %v", err)
		}
	}
	if s.Has("resolution") {
		f := s.Get("resolution")[0].Tokens
		if len(f) != 2 {
			return c, fmt.Errorf("resolution: argument count")
		}
		var err error
		if c.FeedResolution, err = ParseResolution(f[0]); err != nil {
			return c, fmt.Errorf("resolution: %v", err)
		}
		if c.EjectResolution, err = ParseResolution(f[1]); err != nil {
			return c, fmt.Errorf("resolution: %v", err)
		}
	}
	if s.Has("delay") {
		f := s.Get("delay")[0].Tokens
		if len(f) != 2 {
			return c, fmt.Errorf("delay: argument count")
		}
		var err error
		if c.StepDelay, err = time.ParseDuration(strings.TrimSpace(f[0])); err != nil {
			return c, fmt.Errorf("delay: %v", err)
		}
		if c.FlushDelay, err = time.ParseDuration(strings.TrimSpace(f[1])); err != nil {
			return c, fmt.Errorf("delay: %v", err)
		}
	}
	if a, err := s.GetArg("pause"); err == nil {
		if c.Pause, err = time.ParseDuration(strings.TrimSpace(a)); err != nil {
			return c, fmt.Errorf("pause: %v", err)
		}
	}
	pairs := []struct {
		key  string
		a, b *int
	}{
		{"feed", &c.FeedSteps, &c.NudgeSteps},
		{"capture", &c.CaptureSteps, &c.RetractSteps},
		{"eject", &c.EjectSteps, &c.FlushSteps},
	}
	for _, p := range pairs {
		if !s.Has(p.key) {
			continue
		}
		n, err := s.Parse(p.key, "%d,%d", p.a, p.b)
		if err != nil {
			return c, fmt.Errorf("%s: %v", p.key, err)
		}
		if n != 2 {
			return c, fmt.Errorf("%s: argument count", p.key)
		}
	}
	if s.Has("timeouts") {
		n, err := s.Parse("timeouts", "%d,%d,%d,%d,%d,%d", &c.NudgeAfter, &c.FeedTimeout,
			&c.AlignTimeout, &c.CaptureTimeout, &c.DecisionTimeout, &c.EjectTimeout)
		if err != nil {
			return c, fmt.Errorf("timeouts: %v", err)
		}
		if n != 6 {
			return c, fmt.Errorf("timeouts: argument count")
		}
	}
	return c, c.Validate()
}
