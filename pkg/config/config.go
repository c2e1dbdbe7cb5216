// Copyright 2023 The Marmot Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the machine configuration the CLI boots with,
// optionally read from a TOML file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// DiskFile names one host file to place on the boot disk.
type DiskFile struct {
	// Name is the file's name on the boot disk.
	Name string `toml:"name"`

	// Path is the host path read at boot.
	Path string `toml:"path"`
}

// Config is the machine configuration.
type Config struct {
	// MemoryPages is the user frame pool size; 0 selects the kernel
	// default.
	MemoryPages int `toml:"memory_pages"`

	// Debug enables debug logging.
	Debug bool `toml:"debug"`

	// DiskDir is a host directory whose regular files are placed on the
	// boot disk; files whose names start with a dot are skipped.
	DiskDir string `toml:"disk_dir"`

	// Disk lists individual host files for the boot disk.
	Disk []DiskFile `toml:"disk"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{}
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
