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

// Package camera acquires postcard images.

package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand captures a single JPEG still to stdout, without preview.
var DefaultCommand = []string{"libcamera-still", "-n", "-t", "1", "-o", "-"}

// Libcamera captures images by running the libcamera still utility.
type Libcamera struct {
	Command []string
	Timeout time.Duration
}

// NewLibcamera creates a Libcamera using the default command.
func NewLibcamera(timeout time.Duration) *Libcamera {
	return &Libcamera{Command: DefaultCommand, Timeout: timeout}
}

// Capture runs the capture command and returns the image it wrote.
func (c *Libcamera) Capture() (io.Reader, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("camera: no capture command")
	}
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("camera: %s: %v (%s)", c.Command[0], err, msg)
		}
		return nil, fmt.Errorf("camera: %s: %v", c.Command[0], err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("camera: %s: empty image", c.Command[0])
	}
	return &out, nil
}
