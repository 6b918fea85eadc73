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

package fixer

import (
	"context"
	"iter"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/walteh/mapor/pkg/log"
	"github.com/walteh/mapor/pkg/rule"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotText is returned for files that are not valid UTF-8
	ErrNotText = errors.Base("file is not valid UTF-8 text")
	// ErrFilesFailed is returned by Run when at least one file could not be processed
	ErrFilesFailed = errors.Base("some files could not be fixed")
)

// 📊 Result is the outcome of applying a rule set to one piece of text
type Result struct {
	Content string
	Fixes   int
	ByRule  map[string]int
}

// ⚡ Apply runs every rule over content, in order, each rule seeing the output of the previous one
func Apply(content string, rules []rule.Rule) (Result, error) {
	res := Result{Content: content, ByRule: map[string]int{}}
	for _, r := range rules {
		out, n, err := rule.Apply(r, res.Content)
		if err != nil {
			return Result{}, errors.Errorf("applying rule %s: %w", r.RuleName(), err)
		}
		if n > 0 {
			res.ByRule[r.RuleName()] += n
			res.Fixes += n
		}
		res.Content = out
	}
	return res, nil
}

// 🔧 Options configures a Fixer
type Options struct {
	Rules    []rule.Rule // defaults to rule.Default()
	FS       FileSystem  // defaults to OSFileSystem
	Console  *log.Logger // defaults to log.FromContext
	Jobs     int         // files processed at once, defaults to 1
	FailFast bool        // abort the run at the first failing file
	DryRun   bool        // print patches instead of writing
}

// 🔧 Fixer rewrites files with a fixed rule set
type Fixer struct {
	rules    []rule.Rule
	fs       FileSystem
	console  *log.Logger
	jobs     int
	failFast bool
	dryRun   bool
}

// 🏭 New creates a new fixer
func New(opts Options) (*Fixer, error) {
	if opts.Rules == nil {
		opts.Rules = rule.Default()
	}
	if err := rule.Validate(opts.Rules); err != nil {
		return nil, errors.Errorf("validating rules: %w", err)
	}
	if opts.FS == nil {
		opts.FS = OSFileSystem{}
	}
	if opts.Jobs < 0 {
		return nil, errors.Errorf("jobs must not be negative, got %d", opts.Jobs)
	}
	if opts.Jobs == 0 {
		opts.Jobs = 1
	}

	return &Fixer{
		rules:    opts.Rules,
		fs:       opts.FS,
		console:  opts.Console,
		jobs:     opts.Jobs,
		failFast: opts.FailFast,
		dryRun:   opts.DryRun,
	}, nil
}

// consoleFor returns the configured console, or the one travelling on ctx
func (f *Fixer) consoleFor(ctx context.Context) *log.Logger {
	if f.console != nil {
		return f.console
	}
	return log.FromContext(ctx)
}

// 📄 FixFile applies the rule set to one file and returns the number of fixes.
// The file is only written when its content changed.
func (f *Fixer) FixFile(ctx context.Context, path string) (int, error) {
	logger := zerolog.Ctx(ctx).With().Str("file", path).Logger()

	data, err := f.fs.ReadFile(path)
	if err != nil {
		return 0, errors.Errorf("reading %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return 0, errors.Errorf("reading %s: %w", path, ErrNotText)
	}

	original := string(data)
	res, err := Apply(original, f.rules)
	if err != nil {
		return 0, errors.Errorf("fixing %s: %w", path, err)
	}

	if res.Content == original {
		logger.Debug().Msg("no violations")
		return 0, nil
	}

	console := f.consoleFor(ctx)
	if f.dryRun {
		console.Diff(path, linePatch(original, res.Content))
	} else if err := f.fs.WriteFile(path, []byte(res.Content)); err != nil {
		return 0, errors.Errorf("writing %s: %w", path, err)
	}

	console.FileFixed(ctx, log.FileFix{
		Path:   path,
		Fixes:  res.Fixes,
		ByRule: res.ByRule,
		DryRun: f.dryRun,
	})

	return res.Fixes, nil
}

// walkFailure labels a failure that happened while discovering files rather than fixing one
const walkFailure = "(walk)"

// 📊 Summary totals a Run
type Summary struct {
	Files    int           // files processed without error
	Changed  int           // files rewritten
	Fixes    int           // fixes across all files
	Failures []log.Failure // files that could not be processed
}

// 🏃 Run fixes every path in the sequence and prints the run total.
//
// By default a failing file is reported and the run moves on; the failures are listed at the
// end and ErrFilesFailed is returned. With FailFast the first failure aborts the run.
func (f *Fixer) Run(ctx context.Context, paths iter.Seq2[string, error]) (*Summary, error) {
	logger := zerolog.Ctx(ctx)
	console := f.consoleFor(ctx)

	summary := &Summary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.jobs)

	record := func(path string, fixes int, err error) error {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			if f.failFast {
				return err
			}
			summary.Failures = append(summary.Failures, log.Failure{Path: path, Err: err})
			console.Errorf("%s: %v", path, err)
			return nil
		}

		summary.Files++
		if fixes > 0 {
			summary.Changed++
			summary.Fixes += fixes
		}
		return nil
	}

	for path, err := range paths {
		if gctx.Err() != nil {
			break
		}
		if err != nil {
			// the sequence ends after a discovery error
			if rerr := record(walkFailure, 0, err); rerr != nil {
				g.Go(func() error { return rerr })
			}
			break
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fixes, err := f.FixFile(gctx, path)
			return record(path, fixes, err)
		})
	}

	if err := g.Wait(); err != nil {
		return summary, errors.Errorf("fixing files: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return summary, errors.Errorf("fixing files: %w", err)
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Path < summary.Failures[j].Path
	})

	console.Failures(summary.Failures)
	console.Total(summary.Fixes)

	logger.Debug().
		Int("files", summary.Files).
		Int("changed", summary.Changed).
		Int("fixes", summary.Fixes).
		Int("failures", len(summary.Failures)).
		Msg("run finished")

	if len(summary.Failures) > 0 {
		return summary, errors.Errorf("%w: %d of %d", ErrFilesFailed, len(summary.Failures), len(summary.Failures)+summary.Files)
	}
	return summary, nil
}
