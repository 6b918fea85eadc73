// Copyright 2025 walteh LLC
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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// DefaultRoot is the directory scanned when nothing else is configured
	DefaultRoot = "crates"
	// DefaultInclude selects Rust sources
	DefaultInclude = "**/*.rs"
)

// 📄 DiscoverNames are the config file names looked up when no path is given, in order
var DiscoverNames = []string{".mapor.yaml", ".mapor.yml", ".mapor.hcl", ".mapor.json"}

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📚 Config is everything a run needs to know about where to look
type Config struct {
	Root     string   `json:"root,omitempty" yaml:"root,omitempty" hcl:"root,optional"`             // Directory to scan
	Include  []string `json:"include,omitempty" yaml:"include,omitempty" hcl:"include,optional"`    // Globs, relative to Root, of files to fix
	Exclude  []string `json:"exclude,omitempty" yaml:"exclude,omitempty" hcl:"exclude,optional"`    // Globs, relative to Root, of files or dirs to skip
	Jobs     int      `json:"jobs,omitempty" yaml:"jobs,omitempty" hcl:"jobs,optional"`             // Files processed at once
	FailFast bool     `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty" hcl:"fail_fast,optional"` // Stop at the first failing file
	DryRun   bool     `json:"dry_run,omitempty" yaml:"dry_run,omitempty" hcl:"dry_run,optional"`     // Report patches instead of writing
}

// 🏭 Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Root:    DefaultRoot,
		Include: []string{DefaultInclude},
		Jobs:    1,
	}
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	// Get parser
	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	// Parse config
	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// 🔍 Discover loads the first of DiscoverNames found in dir, or Default when there is none
func Discover(ctx context.Context, dir string) (*Config, error) {
	for _, name := range DiscoverNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Errorf("checking %s: %w", path, err)
		}
		return Load(ctx, path)
	}

	zerolog.Ctx(ctx).Debug().Str("dir", dir).Msg("no config file found, using defaults")
	return Default(), nil
}

// 🔍 Validate checks if the configuration is valid and fills in defaults
func (cfg *Config) Validate() error {
	if cfg.Jobs < 0 {
		return errors.Errorf("jobs must not be negative, got %d", cfg.Jobs)
	}

	// Set defaults
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if len(cfg.Include) == 0 {
		cfg.Include = []string{DefaultInclude}
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}

	// Clean up paths
	cfg.Root = filepath.Clean(cfg.Root)

	for _, pattern := range cfg.Include {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("include: invalid pattern %q", pattern)
		}
	}
	for _, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("exclude: invalid pattern %q", pattern)
		}
	}

	return nil
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	s := fmt.Sprintf("%s [%s]", cfg.Root, strings.Join(cfg.Include, ", "))
	if len(cfg.Exclude) > 0 {
		s += fmt.Sprintf(" -[%s]", strings.Join(cfg.Exclude, ", "))
	}
	return s
}
