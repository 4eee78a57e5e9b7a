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

// Simulator for the postcard scanner. It runs the feeder against a simulated
// feed path and camera, with the same HTTP API as the scanner.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aamcrae/config"
	"github.com/aamcrae/postcard/camera"
	"github.com/aamcrae/postcard/feeder"
	"github.com/aamcrae/postcard/server"
	"github.com/aamcrae/postcard/store"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var configFile = flag.String("config", "", "Simulator config file (YAML)")

const captureTimeout = 2 * time.Second

type simConfig struct {
	APIAddr        string        `mapstructure:"api-addr"`
	ImagePath      string        `mapstructure:"image-path"`
	HistoryPath    string        `mapstructure:"history-path"`
	HardwareConfig string        `mapstructure:"hardware-config"`
	Insert         time.Duration `mapstructure:"insert"`   // Interval between cards, 0 for none
	Decision       string        `mapstructure:"decision"` // accept, reject or none
	DecisionDelay  time.Duration `mapstructure:"decision-delay"`
	Speed          float64       `mapstructure:"speed"` // Motor time scale
	Width          int           `mapstructure:"width"`
	Height         int           `mapstructure:"height"`
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig(path string) (simConfig, error) {
	var cfg simConfig
	v := viper.New()
	v.SetEnvPrefix("POSTCARD_SIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-addr", "127.0.0.1:8000")
	v.SetDefault("image-path", filepath.Join(os.TempDir(), "postcard-sim", "img.jpg"))
	v.SetDefault("history-path", "")
	v.SetDefault("hardware-config", "")
	v.SetDefault("insert", 20*time.Second)
	v.SetDefault("decision", "none")
	v.SetDefault("decision-delay", 3*time.Second)
	v.SetDefault("speed", 1.0)
	v.SetDefault("width", 1200)
	v.SetDefault("height", 800)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	switch cfg.Decision {
	case "accept", "reject", "none":
	default:
		return cfg, fmt.Errorf("decision must be accept, reject or none: %q", cfg.Decision)
	}
	if cfg.Speed < 0 {
		return cfg, fmt.Errorf("invalid speed: %v", cfg.Speed)
	}
	return cfg, nil
}

func run(cfg simConfig) error {
	fc := feeder.DefaultConfig()
	if cfg.HardwareConfig != "" {
		conf, err := config.ParseFile(cfg.HardwareConfig)
		if err != nil {
			return err
		}
		if fc, err = feeder.ParseConfig(conf, "feeder"); err != nil {
			return fmt.Errorf("%s: %w", cfg.HardwareConfig, err)
		}
	}
	images, err := store.NewImages(cfg.ImagePath)
	if err != nil {
		return err
	}
	var hsrc server.History
	var history *store.History
	if cfg.HistoryPath != "" {
		history = store.NewHistory(cfg.HistoryPath)
		if err := history.Init(context.Background()); err != nil {
			return err
		}
		defer history.Close()
		hsrc = history
	}

	path := NewPath(fc.Clockwise, cfg.Speed)
	cam := camera.NewSynthetic(cfg.Width, cfg.Height)
	f, err := newFeeder(fc, path, cam, saveCapture(images, history))
	if err != nil {
		return err
	}
	srv := server.NewServer(cfg.APIAddr, f, images, hsrc)
	var record func(feeder.Event)
	if history != nil {
		record = history.Listener()
	}
	decide := decider(f, cfg.Decision, cfg.DecisionDelay)
	f.SetListener(func(ev feeder.Event) {
		log.Printf("sim: %s -> %s", ev.From, ev.To)
		srv.Observe(ev)
		if record != nil {
			record(ev)
		}
		decide(ev)
	})
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.Run(gctx)
	})
	if cfg.Insert > 0 {
		g.Go(func() error {
			return feed(gctx, path, cfg.Insert)
		})
	}
	err = g.Wait()
	acc, ret := path.Counts()
	log.Printf("sim: %d postcards captured, %d accepted, %d returned", cam.Count(), acc, ret)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newFeeder(fc feeder.Config, path *Path, cam feeder.Camera, sink feeder.Sink) (*feeder.Feeder, error) {
	return feeder.New(fc, feeder.Hardware{
		Sensors:   path,
		Actuator:  path,
		Indicator: path,
		Camera:    cam,
		Sink:      sink,
	})
}

// saveCapture returns a sink storing the image and logging the capture.
// history may be nil.
func saveCapture(images *store.Images, history *store.History) feeder.Sink {
	return func(r io.Reader) error {
		n, err := images.Save(r)
		if err != nil || history == nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()
		return history.RecordCapture(ctx, time.Now(), n)
	}
}

// feed inserts a new card whenever the path is empty, every interval.
func feed(ctx context.Context, path *Path, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if path.Insert() {
			log.Printf("sim: card inserted")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// decider returns a listener that makes the decision for each captured
// card after a delay.
func decider(f *feeder.Feeder, decision string, delay time.Duration) func(feeder.Event) {
	return func(ev feeder.Event) {
		if ev.To != feeder.AwaitingDecision || decision == "none" {
			return
		}
		time.AfterFunc(delay, func() {
			if decision == "accept" {
				f.Accept()
			} else {
				f.Reject()
			}
		})
	}
}
