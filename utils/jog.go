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

// Hardware bring-up utility: read the sensors, jog the stepper and
// toggle the capture light.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aamcrae/config"
	"github.com/aamcrae/postcard/device"
	"github.com/aamcrae/postcard/feeder"
)

var configFile = flag.String("config", "", "Hardware configuration file")
var section = flag.String("section", "device", "Device section of the configuration")
var delay = flag.Duration("delay", 300*time.Microsecond, "Delay between step pulses")

func main() {
	flag.Parse()
	dc := device.DefaultConfig()
	if *configFile != "" {
		conf, err := config.ParseFile(*configFile)
		if err != nil {
			log.Fatalf("%s: %v", *configFile, err)
		}
		dc, err = device.Config(conf, *section)
		if err != nil {
			log.Fatalf("%s: %v", *configFile, err)
		}
	}
	dev, err := device.NewDevice(dc)
	if err != nil {
		log.Fatalf("Device: %v", err)
	}
	defer dev.Close()
	reader := bufio.NewReader(os.Stdin)
	res := feeder.Half
	light := false
	for {
		fmt.Printf("Position %d, resolution %s, sensors %s\n", dev.Position(), res, sensors(dev))
		fmt.Print("Enter steps or command ('help' for help) ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		switch {
		case text == "help":
			fmt.Println("  help - print help")
			fmt.Println("  [-]NNN move steps (negative reverses)")
			fmt.Println("  r RES - set resolution (full, half, 1/4 ... 1/32)")
			fmt.Println("  l - toggle light")
			fmt.Println("  s - sleep motor")
			fmt.Println("  q - quit")
		case text == "q":
			return
		case text == "l":
			light = !light
			if light {
				dev.On()
			} else {
				dev.Off()
			}
		case text == "s":
			dev.Sleep()
		case strings.HasPrefix(text, "r "):
			r, err := feeder.ParseResolution(text[2:])
			if err != nil {
				fmt.Printf("%v\n", err)
			} else {
				res = r
			}
		case text == "":
		default:
			var steps int
			n, err := fmt.Sscanf(text, "%d", &steps)
			if err != nil || n != 1 {
				fmt.Printf("Unrecognised input\n")
				continue
			}
			fmt.Printf("Moving %d steps\n", steps)
			dev.Active()
			if steps < 0 {
				dev.Step(true, res, -steps, *delay)
			} else {
				dev.Step(false, res, steps, *delay)
			}
		}
	}
}

func sensors(dev *device.Device) string {
	var b strings.Builder
	for ch := 0; ch < 4; ch++ {
		if dev.Sensor(ch) {
			b.WriteByte('X')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
