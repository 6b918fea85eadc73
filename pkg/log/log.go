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

package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// 🎯 FileFix describes a file that was rewritten
type FileFix struct {
	Path   string         // File path as discovered
	Fixes  int            // Total fixes applied
	ByRule map[string]int // Fixes per rule name
	DryRun bool           // Whether the file was left on disk untouched
}

// ❌ Failure is a file that could not be processed
type Failure struct {
	Path string
	Err  error
}

// 🎯 Logger writes the human-facing run report to the console and mirrors it to zerolog
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
}

// 🏭 New creates a new logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
		mu:      sync.Mutex{},
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context.
// Without one it falls back to stdout, mirrored to the zerolog logger on ctx.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return New(os.Stdout, *zerolog.Ctx(ctx))
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 FileFixed reports a rewritten file
func (l *Logger) FileFixed(ctx context.Context, fix FileFix) {
	l.mu.Lock()
	defer l.mu.Unlock()

	verb := "Fixed"
	if fix.DryRun {
		verb = "Would fix"
	}
	fmt.Fprintf(l.console, "%s %s violations in %s\n",
		verb,
		color.New(color.FgGreen).Sprint(fix.Fixes),
		fix.Path)

	rules := zerolog.Dict()
	names := make([]string, 0, len(fix.ByRule))
	for name := range fix.ByRule {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rules.Int(name, fix.ByRule[name])
	}

	l.zlog.Info().
		Str("file", fix.Path).
		Int("fixes", fix.Fixes).
		Bool("dry_run", fix.DryRun).
		Dict("rules", rules).
		Msg("file fixed")
}

// 📝 Diff prints a patch for a file
func (l *Logger) Diff(path, patch string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "%s %s\n%s", color.New(color.Bold).Sprint("---"), path, patch)
	if len(patch) > 0 && patch[len(patch)-1] != '\n' {
		fmt.Fprintln(l.console)
	}
}

// 📝 Total prints the run summary line
func (l *Logger) Total(fixes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "Total fixes: %s\n", color.New(color.Bold).Sprint(fixes))
	l.zlog.Info().Int("fixes", fixes).Msg("run complete")
}

// 📝 Failures prints a table of the files that could not be processed
func (l *Logger) Failures(failures []Failure) {
	if len(failures) == 0 {
		return
	}

	data := pterm.TableData{{"file", "error"}}
	for _, f := range failures {
		data = append(data, []string{f.Path, f.Err.Error()})
		l.zlog.Error().Err(f.Err).Str("file", f.Path).Msg("file failed")
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		l.zlog.Error().Err(err).Msg("rendering failure table")
		table = ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprintf("%d file(s) failed", len(failures)))
	if table != "" {
		fmt.Fprintln(l.console, table)
	}
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}
