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

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aamcrae/config"
	"github.com/aamcrae/postcard/device"
	"github.com/aamcrae/postcard/feeder"
	"github.com/spf13/viper"
)

const (
	defaultAPIAddr       = "0.0.0.0:8000"
	defaultImagePath     = "img.jpg"
	defaultHistoryPath   = "postcard.db"
	defaultCameraTimeout = 10 * time.Second
)

// appConfig holds the process settings.
type appConfig struct {
	APIAddr        string        `mapstructure:"api-addr"`
	ImagePath      string        `mapstructure:"image-path"`
	HistoryPath    string        `mapstructure:"history-path"`
	HardwareConfig string        `mapstructure:"hardware-config"`
	LogFile        string        `mapstructure:"log-file"`
	CameraTimeout  time.Duration `mapstructure:"camera-timeout"`
	ConfigPath     string        `mapstructure:"-"`
}

// loadConfig reads the process settings from the optional config file
// and POSTCARD_* environment variables.
func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("POSTCARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("image-path", defaultImagePath)
	v.SetDefault("history-path", defaultHistoryPath)
	v.SetDefault("hardware-config", "")
	v.SetDefault("log-file", "")
	v.SetDefault("camera-timeout", defaultCameraTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if cfg.ImagePath == "" {
		return cfg, fmt.Errorf("image-path is empty")
	}
	if cfg.CameraTimeout <= 0 {
		return cfg, fmt.Errorf("invalid camera-timeout: %v", cfg.CameraTimeout)
	}
	// Relative hardware profiles are found next to the config file.
	if cfg.HardwareConfig != "" && !filepath.IsAbs(cfg.HardwareConfig) && cfg.ConfigPath != "" {
		cfg.HardwareConfig = filepath.Join(filepath.Dir(cfg.ConfigPath), cfg.HardwareConfig)
	}
	return cfg, nil
}

// loadHardware reads the [device] and [feeder] sections of the hardware
// profile. With no profile the built-in defaults are used.
func loadHardware(path string) (*device.DeviceConfig, feeder.Config, error) {
	if path == "" {
		return device.DefaultConfig(), feeder.DefaultConfig(), nil
	}
	conf, err := config.ParseFile(path)
	if err != nil {
		return nil, feeder.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	dc, err := device.Config(conf, "device")
	if err != nil {
		return nil, feeder.Config{}, fmt.Errorf("%s: device: %w", path, err)
	}
	fc, err := feeder.ParseConfig(conf, "feeder")
	if err != nil {
		return nil, feeder.Config{}, fmt.Errorf("%s: feeder: %w", path, err)
	}
	return dc, fc, nil
}
