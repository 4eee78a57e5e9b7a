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
	"log"
)

// Run drives the feeder by calling Advance until the context is cancelled.
// The cadence is set by the feeder itself: motor moves and the pauses
// while idle or waiting bound the rate of ticks.
// On return the motor is left asleep.
func (f *Feeder) Run(ctx context.Context) error {
	last := f.Status()
	log.Printf("feeder: running, status %s", last)
	defer f.hw.Actuator.Sleep()
	for {
		select {
		case <-ctx.Done():
			log.Printf("feeder: stopping in %s", f.pos)
			return nil
		default:
		}
		st := f.Advance()
		if st != last {
			log.Printf("feeder: status %s (%s)", st, f.pos)
			last = st
		}
	}
}
