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

// Package store persists captured postcards and the scanner's history.

package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoImage is returned when no postcard has been captured yet.
var ErrNoImage = errors.New("no image captured")

// Images keeps the most recently captured postcard in a file.
// The file is replaced atomically, so readers never see a partial image.
type Images struct {
	path string
	mu   sync.Mutex
}

// NewImages creates an image store writing to path. The directory
// is created if needed.
func NewImages(path string) (*Images, error) {
	if path == "" {
		return nil, errors.New("images: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("images: mkdir: %w", err)
	}
	return &Images{path: path}, nil
}

// Path returns the file holding the last image.
func (im *Images) Path() string {
	return im.path
}

// Save stores the image read from r as the latest postcard,
// returning the number of bytes written.
func (im *Images) Save(r io.Reader) (int64, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(im.path), ".postcard-*")
	if err != nil {
		return 0, fmt.Errorf("images: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("empty image")
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("images: %w", err)
	}
	if err := os.Rename(tmp.Name(), im.path); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("images: %w", err)
	}
	return n, nil
}

// Last returns the latest image and the time it was stored.
func (im *Images) Last() ([]byte, time.Time, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	b, err := os.ReadFile(im.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, ErrNoImage
		}
		return nil, time.Time{}, fmt.Errorf("images: %w", err)
	}
	st, err := os.Stat(im.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("images: %w", err)
	}
	return b, st.ModTime(), nil
}

// Timestamp returns the time the latest image was stored.
func (im *Images) Timestamp() (time.Time, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	st, err := os.Stat(im.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNoImage
		}
		return time.Time{}, fmt.Errorf("images: %w", err)
	}
	return st.ModTime(), nil
}
