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

package camera

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
)

// Synthetic renders an artificial postcard for each capture, so
// that the scanner can be run without imaging hardware.
type Synthetic struct {
	Width, Height int
	Quality       int
	mu            sync.Mutex
	count         int
}

// NewSynthetic creates a Synthetic camera producing images of the given size.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{Width: width, Height: height, Quality: 85}
}

// Count returns the number of images captured.
func (s *Synthetic) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Capture draws the next postcard and returns it as a JPEG.
func (s *Synthetic) Capture() (io.Reader, error) {
	s.mu.Lock()
	s.count++
	n := s.count
	s.mu.Unlock()
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("camera: invalid image size %dx%d", s.Width, s.Height)
	}
	c := s.draw(n, time.Now())
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.Image(), &jpeg.Options{Quality: s.Quality}); err != nil {
		return nil, fmt.Errorf("camera: encode: %v", err)
	}
	return &buf, nil
}

func (s *Synthetic) draw(n int, t time.Time) *gg.Context {
	w, h := float64(s.Width), float64(s.Height)
	c := gg.NewContext(s.Width, s.Height)
	// Card stock, tinted differently for each card.
	hue := float64(n%6) * math.Pi / 3
	c.SetRGB(0.9+0.05*math.Sin(hue), 0.88+0.05*math.Cos(hue), 0.8)
	c.Clear()
	c.SetRGB(0.2, 0.2, 0.2)
	c.SetLineWidth(3)
	c.DrawRectangle(4, 4, w-8, h-8)
	c.Stroke()
	// Divider between message and address halves.
	c.SetLineWidth(1)
	c.DrawLine(w/2, h*0.1, w/2, h*0.9)
	c.Stroke()
	// Stamp.
	c.SetRGB(0.7, 0.1, 0.1)
	c.DrawRectangle(w*0.8, h*0.08, w*0.12, h*0.2)
	c.Fill()
	// Address lines.
	c.SetRGB(0.3, 0.3, 0.3)
	for i := 1; i <= 4; i++ {
		y := h*0.4 + float64(i)*h*0.1
		c.DrawLine(w*0.55, y, w*0.92, y)
	}
	c.Stroke()
	c.SetRGB(0, 0, 0.4)
	c.DrawStringAnchored(fmt.Sprintf("Postcard #%d", n), w/4, h/3, 0.5, 0.5)
	c.DrawStringAnchored(t.Format("2006-01-02 15:04:05"), w/4, h/2, 0.5, 0.5)
	return c
}
