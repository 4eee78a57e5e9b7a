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

package io

import (
	"os"
	"path/filepath"
	"testing"
)

// testPin returns a pin backed by a plain file standing in for the sysfs value file.
func testPin(t *testing.T, direction int, invert bool) (*Gpio, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "value")
	if err := os.WriteFile(path, []byte("0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return &Gpio{number: 99, value: f, buf: make([]byte, 1), direction: direction, invert: invert}, path
}

func readValue(t *testing.T, path string) byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil || len(b) == 0 {
		t.Fatalf("read value: %v", err)
	}
	return b[0]
}

func TestGpioSetGet(t *testing.T) {
	tests := []struct {
		invert bool
		set    int
		raw    byte
	}{
		{false, 1, '1'},
		{false, 0, '0'},
		{true, 1, '0'},
		{true, 0, '1'},
	}
	for _, tt := range tests {
		g, path := testPin(t, OUT, tt.invert)
		if err := g.Set(tt.set); err != nil {
			t.Fatalf("Set(%d): %v", tt.set, err)
		}
		if raw := readValue(t, path); raw != tt.raw {
			t.Errorf("invert=%v Set(%d) wrote %q, want %q", tt.invert, tt.set, raw, tt.raw)
		}
		v, err := g.Get()
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != tt.set {
			t.Errorf("invert=%v Get() = %d, want %d", tt.invert, v, tt.set)
		}
	}
}

func TestGpioErrors(t *testing.T) {
	in, _ := testPin(t, IN, false)
	if err := in.Set(1); err == nil {
		t.Errorf("Set on input pin succeeded")
	}
	out, path := testPin(t, OUT, false)
	if err := out.Set(2); err == nil {
		t.Errorf("Set(2) succeeded")
	}
	if err := out.Edge(BOTH); err == nil {
		t.Errorf("Edge on output pin succeeded")
	}
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := out.Get(); err == nil {
		t.Errorf("Get of garbage value succeeded")
	}
}
