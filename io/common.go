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

// Package io manages sysfs GPIO pins and the stepper driver attached to them.

package io

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Setter is an interface for setting an output value on a GPIO
type Setter interface {
	Set(int) error
}

// Getter is an interface for reading an input value from a GPIO
type Getter interface {
	Get() (int, error)
}

const accessTimeout = 2 * time.Second

// WaitForAccess makes export wait until the exported pin files are writable.
// Unless running as root, udev adjusts the group and mode of the new files
// some time after the export, and opening them earlier fails.
var WaitForAccess = os.Geteuid() != 0

// export makes a GPIO available in sysfs, unless it already is.
func export(gpio int) error {
	val := fmt.Sprintf("%sgpio%d/value", baseDir, gpio)
	if unix.Access(val, unix.W_OK|unix.R_OK) == nil {
		return nil
	}
	if err := writeFile(exportFile, strconv.Itoa(gpio)); err != nil {
		return err
	}
	if !WaitForAccess {
		return nil
	}
	for _, f := range []string{val, fmt.Sprintf("%sgpio%d/direction", baseDir, gpio)} {
		if err := waitWritable(f); err != nil {
			return err
		}
	}
	return nil
}

func unexport(gpio int) error {
	return writeFile(unexportFile, strconv.Itoa(gpio))
}

// writeFile writes s to an existing sysfs file.
func writeFile(fname, s string) error {
	f, err := os.OpenFile(fname, os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

func waitWritable(f string) error {
	const poll = time.Millisecond
	for waited := time.Duration(0); waited < accessTimeout; waited += poll {
		if unix.Access(f, unix.W_OK) == nil {
			return nil
		}
		time.Sleep(poll)
	}
	return fmt.Errorf("%s: not writable", f)
}
