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

// Program to watch the four postcard sensors, using edge triggered inputs.

package main

import (
	"flag"
	"log"

	"github.com/aamcrae/postcard/io"
)

var gpios = []*int{
	flag.Int("s0", 16, "GPIO pin for sensor 0 (entry)"),
	flag.Int("s1", 19, "GPIO pin for sensor 1"),
	flag.Int("s2", 20, "GPIO pin for sensor 2"),
	flag.Int("s3", 21, "GPIO pin for sensor 3 (end)"),
}
var invert = flag.Bool("invert", false, "Sensors read low when blocked")

type change struct {
	sensor int
	value  int
}

func main() {
	flag.Parse()
	ch := make(chan change)
	for i, gp := range gpios {
		p, err := io.InputPin(*gp, *invert)
		if err != nil {
			log.Fatalf("Pin %d: %v", *gp, err)
		}
		if err := p.Edge(io.BOTH); err != nil {
			log.Fatalf("Pin %d: edge BOTH: %v", *gp, err)
		}
		defer p.Close()
		go func(sensor int, p *io.Gpio) {
			for {
				v, err := p.Get()
				if err != nil {
					log.Fatalf("Pin %d: Get: %v", p.Number(), err)
				}
				ch <- change{sensor, v}
			}
		}(i, p)
	}
	var state [4]int
	for c := range ch {
		state[c.sensor] = c.value
		log.Printf("sensor %d = %d, sensors %v", c.sensor, c.value, state)
	}
}
