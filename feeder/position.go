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

// Position is where the card is understood to be along the feed path.
type Position int

const (
	Idle Position = iota
	Feeding
	Aligning
	Capturing
	AwaitingDecision
	Ejecting
	Jammed
)

func (p Position) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Feeding:
		return "Feeding"
	case Aligning:
		return "Aligning"
	case Capturing:
		return "Capturing"
	case AwaitingDecision:
		return "AwaitingDecision"
	case Ejecting:
		return "Ejecting"
	case Jammed:
		return "Jammed"
	default:
		return "Unknown"
	}
}

// Status is the lifecycle status reported to the caller on every tick.
// It is derived from the position, not stored.
type Status int

const (
	Enabled Status = iota // idle, ready for a card
	Scanning
	Error // jammed, sensors still obstructed
)

func (s Status) String() string {
	switch s {
	case Enabled:
		return "enabled"
	case Scanning:
		return "scanning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
