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

// Postcard scanner program

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aamcrae/postcard/camera"
	"github.com/aamcrae/postcard/device"
	"github.com/aamcrae/postcard/feeder"
	"github.com/aamcrae/postcard/server"
	"github.com/aamcrae/postcard/store"
	"golang.org/x/sync/errgroup"
)

var configFile = flag.String("config", "", "Scanner config file (YAML)")

func main() {
	flag.Parse()
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	closeLog := configureLogger(cfg.LogFile)
	defer closeLog()
	if err := run(cfg); err != nil {
		log.Printf("Error: %v", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg appConfig) error {
	dc, fc, err := loadHardware(cfg.HardwareConfig)
	if err != nil {
		return err
	}
	dev, err := device.NewDevice(dc)
	if err != nil {
		return err
	}
	defer dev.Close()

	images, err := store.NewImages(cfg.ImagePath)
	if err != nil {
		return err
	}
	var history *store.History
	var hsrc server.History
	if cfg.HistoryPath != "" {
		history = store.NewHistory(cfg.HistoryPath)
		if err := history.Init(context.Background()); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer history.Close()
		hsrc = history
	}

	f, err := feeder.New(fc, feeder.Hardware{
		Sensors:   dev,
		Actuator:  dev,
		Indicator: dev,
		Camera:    camera.NewLibcamera(cfg.CameraTimeout),
		Sink:      saveImage(images, history),
	})
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg.APIAddr, f, images, hsrc)
	f.SetListener(observe(srv, history))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Printf("Shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.Run(gctx)
	})
	return g.Wait()
}

// saveImage returns the feeder sink storing each captured postcard.
func saveImage(images *store.Images, history *store.History) feeder.Sink {
	return func(r io.Reader) error {
		n, err := images.Save(r)
		if err != nil {
			return err
		}
		log.Printf("Received image (%d bytes)", n)
		if history != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := history.RecordCapture(ctx, time.Now(), n); err != nil {
				log.Printf("history: %v", err)
			}
		}
		return nil
	}
}

// observe fans feeder transitions out to the API and the history log.
func observe(srv *server.Server, history *store.History) func(feeder.Event) {
	var record func(feeder.Event)
	if history != nil {
		record = history.Listener()
	}
	return func(ev feeder.Event) {
		srv.Observe(ev)
		if record != nil {
			record(ev)
		}
	}
}

// configureLogger sets the log format, and sends output to path if set.
func configureLogger(path string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("log-file: %v", err)
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("log-file: %v", err)
		return func() {}
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}
