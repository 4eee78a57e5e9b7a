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
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type move struct {
	clockwise bool
	res       Resolution
	count     int
	delay     time.Duration
}

type fakeHW struct {
	mu       sync.Mutex
	sensor   [4]bool
	moves    []move
	active   bool
	ledOn    bool
	ledFlips int
	captures int
	camErr   error
	sinkErr  error
	panicky  bool
	images   []string
}

func (h *fakeHW) set(s0, s1, s2, s3 bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sensor = [4]bool{s0, s1, s2, s3}
}

func (h *fakeHW) Sensor(ch int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sensor[ch]
}

func (h *fakeHW) Step(clockwise bool, res Resolution, count int, delay time.Duration) {
	h.moves = append(h.moves, move{clockwise, res, count, delay})
}

func (h *fakeHW) Sleep()  { h.active = false }
func (h *fakeHW) Active() { h.active = true }

func (h *fakeHW) On() {
	h.ledOn = true
	h.ledFlips++
}

func (h *fakeHW) Off() {
	h.ledOn = false
	h.ledFlips++
}

func (h *fakeHW) Capture() (io.Reader, error) {
	h.captures++
	if h.camErr != nil {
		return nil, h.camErr
	}
	return strings.NewReader("jpeg"), nil
}

func (h *fakeHW) sink(r io.Reader) error {
	if h.panicky {
		panic("storage exploded")
	}
	if h.sinkErr != nil {
		return h.sinkErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	h.images = append(h.images, string(b))
	return nil
}

func (h *fakeHW) lastMove() move {
	if len(h.moves) == 0 {
		return move{}
	}
	return h.moves[len(h.moves)-1]
}

func testConfig() Config {
	c := DefaultConfig()
	c.Pause = 0
	c.StepDelay = 0
	c.FlushDelay = 0
	return c
}

func newTestFeeder(t *testing.T, s [4]bool) (*Feeder, *fakeHW) {
	t.Helper()
	h := &fakeHW{sensor: s}
	f, err := New(testConfig(), Hardware{Sensors: h, Actuator: h, Indicator: h, Camera: h, Sink: h.sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, h
}

func advance(t *testing.T, f *Feeder, wantPos Position, wantStatus Status) {
	t.Helper()
	st := f.Advance()
	if st != wantStatus || f.Position() != wantPos {
		t.Fatalf("Advance = %s in %s, want %s in %s", st, f.Position(), wantStatus, wantPos)
	}
}

// toDecision feeds a card from Idle up to AwaitingDecision.
func toDecision(t *testing.T) (*Feeder, *fakeHW) {
	t.Helper()
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	advance(t, f, Feeding, Scanning)
	h.set(true, true, true, false)
	advance(t, f, Aligning, Scanning)
	h.set(true, true, true, true)
	advance(t, f, Capturing, Scanning)
	h.set(true, false, true, true)
	advance(t, f, AwaitingDecision, Scanning)
	return f, h
}

func TestInitialPosition(t *testing.T) {
	tests := []struct {
		name   string
		sensor [4]bool
		want   Position
	}{
		{"empty", [4]bool{}, Idle},
		{"downstream only", [4]bool{false, false, true, true}, Idle},
		{"entry 0", [4]bool{true, false, false, false}, Aligning},
		{"entry 1", [4]bool{false, true, false, false}, Aligning},
		{"card present", [4]bool{true, true, true, false}, Aligning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFeeder(t, tt.sensor)
			if f.Position() != tt.want {
				t.Errorf("initial position = %s, want %s", f.Position(), tt.want)
			}
		})
	}
}

func TestNewRequiresHardware(t *testing.T) {
	h := &fakeHW{}
	if _, err := New(testConfig(), Hardware{Sensors: h, Camera: h}); err == nil {
		t.Errorf("New without actuator succeeded")
	}
	bad := testConfig()
	bad.NudgeAfter = bad.FeedTimeout + 1
	if _, err := New(bad, Hardware{Sensors: h, Actuator: h, Camera: h}); err == nil {
		t.Errorf("New with invalid config succeeded")
	}
}

func TestIdle(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.active = true
	advance(t, f, Idle, Enabled)
	if h.active {
		t.Errorf("actuator left active while idle")
	}
	if len(h.moves) != 0 {
		t.Errorf("idle moved the motor: %v", h.moves)
	}
}

func TestIdleToFeeding(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	advance(t, f, Feeding, Scanning)
	if f.Counter() != 0 {
		t.Errorf("counter = %d, want 0", f.Counter())
	}
	if !h.active {
		t.Errorf("actuator not active after card entry")
	}
}

func TestFeedingMovesForward(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	f.Advance()
	advance(t, f, Feeding, Scanning)
	want := move{clockwise: false, res: Half, count: 100}
	if m := h.lastMove(); m != want {
		t.Errorf("feed move = %+v, want %+v", m, want)
	}
	if f.Counter() != 1 {
		t.Errorf("counter = %d, want 1", f.Counter())
	}
}

func TestFeedingRetracted(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	f.Advance()
	f.Accept()
	h.set(true, false, false, false)
	advance(t, f, Idle, Scanning)
	if a, r := f.Pending(); a || r {
		t.Errorf("decision flags survived return to idle: %v %v", a, r)
	}
}

func TestFeedingSecondSensorWins(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	f.Advance()
	// Sensor 2 set while the entry sensors report clear: aligning takes precedence.
	h.set(false, false, true, false)
	advance(t, f, Aligning, Scanning)
}

func TestFeedingNudgeAndJam(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	f.Advance()
	h.moves = nil
	for i := 1; i <= 80; i++ {
		advance(t, f, Feeding, Scanning)
		if f.Counter() != uint32(i) {
			t.Fatalf("counter = %d, want %d", f.Counter(), i)
		}
	}
	nudges := 0
	for _, m := range h.moves {
		if m.clockwise {
			nudges++
			if m.count != 100 {
				t.Errorf("nudge of %d steps, want 100", m.count)
			}
		}
	}
	if nudges != 30 {
		t.Errorf("nudges = %d, want 30", nudges)
	}
	advance(t, f, Jammed, Scanning)
	if f.Counter() != 0 {
		t.Errorf("counter = %d after jam, want 0", f.Counter())
	}
}

func TestJamThresholds(t *testing.T) {
	tests := []struct {
		pos    Position
		sensor [4]bool
		limit  int
	}{
		{Feeding, [4]bool{true, true, false, false}, 80},
		{Aligning, [4]bool{true, true, true, false}, 100},
		{Capturing, [4]bool{true, true, true, true}, 100},
		{Ejecting, [4]bool{false, false, true, false}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.pos.String(), func(t *testing.T) {
			f, h := newTestFeeder(t, [4]bool{})
			f.enter(tt.pos)
			h.set(tt.sensor[0], tt.sensor[1], tt.sensor[2], tt.sensor[3])
			for i := 0; i < tt.limit; i++ {
				advance(t, f, tt.pos, Scanning)
			}
			moves := len(h.moves)
			advance(t, f, Jammed, Scanning)
			if tt.pos != Feeding && len(h.moves) != moves {
				t.Errorf("motor moved on the jamming tick")
			}
		})
	}
}

func TestNoJamWhileIdleOrWaiting(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	for i := 0; i < 2000; i++ {
		advance(t, f, Idle, Enabled)
	}
	f, h = toDecision(t)
	h.set(true, true, true, true)
	for i := 0; i < 1200; i++ {
		advance(t, f, AwaitingDecision, Scanning)
	}
}

func TestAligningFallsBack(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{true, true, true, false})
	if f.Position() != Aligning {
		t.Fatalf("start = %s, want Aligning", f.Position())
	}
	h.set(true, true, false, false)
	advance(t, f, Feeding, Scanning)
	f.enter(Aligning)
	// Sensor 3 takes precedence over a clear sensor 2.
	h.set(true, true, false, true)
	advance(t, f, Capturing, Scanning)
}

func TestCapture(t *testing.T) {
	f, h := toDecision(t)
	if h.captures != 1 {
		t.Errorf("captures = %d, want 1", h.captures)
	}
	if len(h.images) != 1 || h.images[0] != "jpeg" {
		t.Errorf("sink received %q", h.images)
	}
	if h.ledOn || h.ledFlips != 2 {
		t.Errorf("indicator on=%v flips=%d, want off after 2 flips", h.ledOn, h.ledFlips)
	}
	if h.active {
		t.Errorf("actuator left active while waiting for a decision")
	}
	retract := h.moves[len(h.moves)-1]
	if !retract.clockwise || retract.count != 40 {
		t.Errorf("retract move = %+v", retract)
	}
	if f.Counter() != 0 {
		t.Errorf("counter = %d, want 0", f.Counter())
	}
}

func TestCaptureFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *fakeHW)
	}{
		{"camera error", func(h *fakeHW) { h.camErr = errors.New("no camera") }},
		{"sink error", func(h *fakeHW) { h.sinkErr = errors.New("disk full") }},
		{"sink panic", func(h *fakeHW) { h.panicky = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, h := newTestFeeder(t, [4]bool{})
			f.enter(Capturing)
			tt.setup(h)
			h.set(true, false, true, true)
			advance(t, f, AwaitingDecision, Scanning)
			if h.ledOn {
				t.Errorf("indicator left on after failed capture")
			}
		})
	}
}

func TestAccept(t *testing.T) {
	f, h := toDecision(t)
	f.Accept()
	advance(t, f, Ejecting, Scanning)
	if !h.active {
		t.Errorf("actuator not active for eject")
	}
	if a, _ := f.Pending(); a {
		t.Errorf("accept flag not cleared")
	}
	h.set(false, false, true, false)
	advance(t, f, Ejecting, Scanning)
	if m := h.lastMove(); m.clockwise || m.count != 200 {
		t.Errorf("eject move = %+v", m)
	}
	h.set(false, false, false, false)
	advance(t, f, Idle, Scanning)
	if m := h.lastMove(); m.clockwise || m.count != 3000 {
		t.Errorf("flush move = %+v", m)
	}
	if h.active {
		t.Errorf("actuator left active after eject")
	}
	advance(t, f, Idle, Enabled)
}

func TestReject(t *testing.T) {
	f, h := toDecision(t)
	f.Reject()
	advance(t, f, Idle, Scanning)
	m := h.lastMove()
	if !m.clockwise || m.count != 3000 || m.res != Half {
		t.Errorf("return move = %+v", m)
	}
	if _, r := f.Pending(); r {
		t.Errorf("reject flag not cleared")
	}
}

func TestAcceptWinsOverReject(t *testing.T) {
	f, _ := toDecision(t)
	f.Reject()
	f.Accept()
	advance(t, f, Ejecting, Scanning)
	if a, r := f.Pending(); a || !r {
		t.Errorf("pending = %v %v, want reject still latched", a, r)
	}
}

func TestStaleRejectClearedOnIdle(t *testing.T) {
	f, h := toDecision(t)
	f.Accept()
	f.Reject()
	f.Advance()
	h.set(false, false, false, false)
	advance(t, f, Idle, Scanning)
	if _, r := f.Pending(); r {
		t.Errorf("reject leaked into the next card cycle")
	}
}

func TestAcceptLatchedUntilDecision(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	h.set(true, true, false, false)
	f.Advance()
	f.Accept()
	h.set(true, true, true, false)
	advance(t, f, Aligning, Scanning)
	h.set(true, true, true, true)
	advance(t, f, Capturing, Scanning)
	if a, _ := f.Pending(); !a {
		t.Fatalf("accept flag lost before decision")
	}
	h.set(true, false, true, true)
	advance(t, f, AwaitingDecision, Scanning)
	advance(t, f, Ejecting, Scanning)
}

func TestDecisionTimeout(t *testing.T) {
	f, _ := toDecision(t)
	for i := 0; i < 1200; i++ {
		advance(t, f, AwaitingDecision, Scanning)
	}
	if f.Counter() != 1200 {
		t.Fatalf("counter = %d, want 1200", f.Counter())
	}
	advance(t, f, Ejecting, Scanning)
	if f.Counter() != 0 {
		t.Errorf("counter = %d, want 0", f.Counter())
	}
	if a, _ := f.Pending(); a {
		t.Errorf("accept flag set after timeout")
	}
}

func TestJammedRecovery(t *testing.T) {
	for ch := 0; ch < 4; ch++ {
		f, h := newTestFeeder(t, [4]bool{})
		f.enter(Jammed)
		var s [4]bool
		s[ch] = true
		h.set(s[0], s[1], s[2], s[3])
		h.active = true
		advance(t, f, Jammed, Error)
		if h.active {
			t.Errorf("actuator active while jammed")
		}
		h.set(false, false, false, false)
		advance(t, f, Idle, Enabled)
	}
}

func TestCounterResetOnTransition(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	var events []Event
	f.SetListener(func(e Event) {
		if f.Counter() != 0 {
			t.Errorf("counter = %d entering %s", f.Counter(), e.To)
		}
		events = append(events, e)
	})
	h.set(true, true, false, false)
	f.Advance()
	f.Advance()
	f.Advance()
	h.set(true, true, true, false)
	f.Advance()
	h.set(true, true, true, true)
	f.Advance()
	h.set(true, false, true, true)
	f.Advance()
	f.Accept()
	f.Advance()
	h.set(false, false, false, false)
	f.Advance()
	want := []Position{Feeding, Aligning, Capturing, AwaitingDecision, Ejecting, Idle}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.To != want[i] {
			t.Errorf("event %d to %s, want %s", i, e.To, want[i])
		}
		if i > 0 && e.From != want[i-1] {
			t.Errorf("event %d from %s, want %s", i, e.From, want[i-1])
		}
	}
}

func TestConcurrentDecision(t *testing.T) {
	f, _ := toDecision(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Accept()
		}()
	}
	wg.Wait()
	advance(t, f, Ejecting, Scanning)
	if a, _ := f.Pending(); a {
		t.Errorf("accept flag still set")
	}
}

func TestRun(t *testing.T) {
	f, h := newTestFeeder(t, [4]bool{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	h.active = true
	if err := f.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.active {
		t.Errorf("actuator left active after Run")
	}
	if f.Status() != Enabled {
		t.Errorf("status = %s, want enabled", f.Status())
	}
}
