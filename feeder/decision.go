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
	"sync/atomic"
)

// decisions holds the accept/reject flags written by the control surface.
// Flags may be set from any goroutine; the feed loop consumes each one
// with a swap so that only the bit actually read is cleared.
type decisions struct {
	accepted atomic.Bool
	rejected atomic.Bool
}

func (d *decisions) accept() {
	d.accepted.Store(true)
}

func (d *decisions) reject() {
	d.rejected.Store(true)
}

// takeAccept returns and clears the accept flag.
func (d *decisions) takeAccept() bool {
	return d.accepted.Swap(false)
}

// takeReject returns and clears the reject flag.
func (d *decisions) takeReject() bool {
	return d.rejected.Swap(false)
}

// clear drops any latched decision, used when a card cycle ends.
func (d *decisions) clear() {
	d.accepted.Store(false)
	d.rejected.Store(false)
}

// pending reports the latched flags without consuming them.
func (d *decisions) pending() (accepted, rejected bool) {
	return d.accepted.Load(), d.rejected.Load()
}
