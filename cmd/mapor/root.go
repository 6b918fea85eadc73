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

package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/walteh/mapor/pkg/config"
	"github.com/walteh/mapor/pkg/fixer"
	"github.com/walteh/mapor/pkg/log"
	"github.com/walteh/mapor/pkg/walk"
	"gitlab.com/tozd/go/errors"
)

// rootOpts holds the flag values of the root command
type rootOpts struct {
	configFile string
	root       string
	include    []string
	exclude    []string
	jobs       int
	failFast   bool
	dryRun     bool
	debug      bool
}

// NewCommand creates the mapor root command
func NewCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:   "mapor",
		Short: "Rewrite .unwrap_or(...) fallbacks in Rust sources to .map_or(...)",
		Long: `mapor walks a Rust source tree and rewrites a fixed set of .unwrap_or(...)
anti-patterns into their .map_or(...) equivalents, in place.

With no arguments it fixes every .rs file under ./crates. A file is only
rewritten when at least one rule matched. Run "mapor rules" for the catalogue.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), cmd.Flags(), stdout, stderr)
		},
	}

	addRootFlags(cmd, opts)

	cmd.AddCommand(
		newRulesCmd(stdout),
		newVersionCmd(stdout),
	)

	return cmd
}

// addRootFlags adds the root command flags
func addRootFlags(cmd *cobra.Command, opts *rootOpts) {
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "config file path (default: .mapor.{yaml,yml,hcl,json} if present)")
	cmd.Flags().StringVarP(&opts.root, "root", "r", config.DefaultRoot, "directory to scan")
	cmd.Flags().StringArrayVar(&opts.include, "include", []string{config.DefaultInclude}, "globs of files to fix, relative to root")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil, "globs of files or directories to skip, relative to root")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 1, "files to process at once")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "stop at the first file that cannot be fixed")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the changes instead of writing them")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
}

// setupLogging configures zerolog based on flags
func setupLogging(ctx context.Context, stderr io.Writer, debug bool) context.Context {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()
	return logger.WithContext(ctx)
}

// loadConfig resolves the config file, then lets explicitly set flags override it
func (o *rootOpts) loadConfig(ctx context.Context, flags *pflag.FlagSet) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configFile != "" {
		cfg, err = config.Load(ctx, o.configFile)
	} else {
		cfg, err = config.Discover(ctx, ".")
	}
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}

	if flags.Changed("root") {
		cfg.Root = o.root
	}
	if flags.Changed("include") {
		cfg.Include = o.include
	}
	if flags.Changed("exclude") {
		cfg.Exclude = o.exclude
	}
	if flags.Changed("jobs") {
		cfg.Jobs = o.jobs
	}
	if flags.Changed("fail-fast") {
		cfg.FailFast = o.failFast
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = o.dryRun
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (o *rootOpts) run(ctx context.Context, flags *pflag.FlagSet, stdout, stderr io.Writer) error {
	ctx = setupLogging(ctx, stderr, o.debug)
	logger := zerolog.Ctx(ctx)
	console := log.New(stdout, *logger)
	ctx = log.NewContext(ctx, console)

	cfg, err := o.loadConfig(ctx, flags)
	if err != nil {
		return err
	}
	logger.Debug().Stringer("config", cfg).Msg("resolved configuration")

	if err := walk.CheckRoot(cfg.Root); err != nil {
		return err
	}

	if cfg.DryRun {
		console.Warning("dry run, no files will be written")
	}

	f, err := fixer.New(fixer.Options{
		Jobs:     cfg.Jobs,
		FailFast: cfg.FailFast,
		DryRun:   cfg.DryRun,
	})
	if err != nil {
		return errors.Errorf("creating fixer: %w", err)
	}

	if _, err := f.Run(ctx, walk.Files(ctx, cfg.Root, cfg.Include, cfg.Exclude)); err != nil {
		return err
	}
	return nil
}
