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
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/mapor/pkg/log"
	"github.com/walteh/mapor/pkg/rule"
	"github.com/walteh/mapor/pkg/walk"
	"gitlab.com/tozd/go/errors"
)

// memFS is an in-memory FileSystem that counts writes
type memFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	writes   map[string]int
	readOnly map[string]bool
}

func newMemFS(files map[string]string) *memFS {
	m := &memFS{
		files:    map[string][]byte{},
		writes:   map[string]int{},
		readOnly: map[string]bool{},
	}
	for name, content := range files {
		m.files[name] = []byte(content)
	}
	return m
}

func (m *memFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *memFS) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly[name] {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrPermission}
	}
	m.files[name] = append([]byte(nil), data...)
	m.writes[name]++
	return nil
}

func (m *memFS) content(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[name])
}

func newTestFixer(t *testing.T, mfs FileSystem, opts Options) (*Fixer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	buf := &bytes.Buffer{}
	opts.FS = mfs
	opts.Console = log.New(buf, zerolog.New(zerolog.NewTestWriter(t)))
	f, err := New(opts)
	require.NoError(t, err)
	return f, buf
}

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	return logger.WithContext(context.Background())
}

func TestApplyChainsTransforms(t *testing.T) {
	grow := &rule.Transform{
		Name:    "grow-receiver",
		Pattern: regexp.MustCompile(`(?P<r>\b[a-z])\.get`),
		Replace: func(m rule.Match) string {
			r := m.Group("r")
			return r + r + r + ".get"
		},
	}
	shrink := &rule.Transform{
		Name:    "index-call",
		Pattern: regexp.MustCompile(`(?P<r>[a-z]+)\.get\((?P<i>[0-9])\)`),
		Replace: func(m rule.Match) string {
			return m.Group("r") + "[" + m.Group("i") + "]"
		},
	}
	unindex := &rule.Transform{
		Name:    "checked-index",
		Pattern: regexp.MustCompile(`(?P<r>[a-z]+)\[(?P<i>[0-9])\]`),
		Replace: func(m rule.Match) string {
			return m.Group("r") + ".at(" + m.Group("i") + ").copied().unwrap()"
		},
	}

	tests := []struct {
		name       string
		rules      []rule.Rule
		input      string
		want       string
		wantFixes  int
		wantByRule map[string]int
	}{
		{
			name:       "grow_then_shrink",
			rules:      []rule.Rule{grow, shrink},
			input:      "a.get(1) + b.get(2) + c.get(3)",
			want:       "aaa[1] + bbb[2] + ccc[3]",
			wantFixes:  6,
			wantByRule: map[string]int{"grow-receiver": 3, "index-call": 3},
		},
		{
			name:       "shrink_then_grow",
			rules:      []rule.Rule{shrink, unindex},
			input:      "xs.get(0) + ys.get(1)+zs.get(2)",
			want:       "xs.at(0).copied().unwrap() + ys.at(1).copied().unwrap()+zs.at(2).copied().unwrap()",
			wantFixes:  6,
			wantByRule: map[string]int{"index-call": 3, "checked-index": 3},
		},
		{
			name:       "second_rule_sees_only_first_rule_output",
			rules:      []rule.Rule{unindex, shrink},
			input:      "xs.get(0) + ys[1]",
			want:       "xs[0] + ys.at(1).copied().unwrap()",
			wantFixes:  2,
			wantByRule: map[string]int{"checked-index": 1, "index-call": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, rule.Validate(tt.rules))

			res, err := Apply(tt.input, tt.rules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Content)
			assert.Equal(t, tt.wantFixes, res.Fixes)
			assert.Equal(t, tt.wantByRule, res.ByRule)
		})
	}
}

func TestFixFile(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		want       string
		wantCount  int
		wantOutput string
	}{
		{
			name:      "no_violations",
			content:   "fn main() {\n    let x = 1;\n}\n",
			want:      "fn main() {\n    let x = 1;\n}\n",
			wantCount: 0,
		},
		{
			name:       "single_int_fallback",
			content:    "let x = opt.unwrap_or(0);\n",
			want:       "let x = opt.map_or(0, |v| v);\n",
			wantCount:  1,
			wantOutput: "Fixed 1 violations in lib.rs\n",
		},
		{
			name:       "single_bool_fallback",
			content:    "if ok.unwrap_or(false) {}\n",
			want:       "if ok.map_or(false, |v| v) {}\n",
			wantCount:  1,
			wantOutput: "Fixed 1 violations in lib.rs\n",
		},
		{
			name:      "chained_call_untouched",
			content:   "ok.unwrap_or(false).then(|| 1);\n",
			want:      "ok.unwrap_or(false).then(|| 1);\n",
			wantCount: 0,
		},
		{
			name:       "several_slice_guards",
			content:    "let a = h.get(0..16).unwrap_or(&[]);\nlet b = h.get(16..32).unwrap_or(&[]);\nlet c = h.get(32..).unwrap_or(&[]);\n",
			want:       "let a = h.get(0..16).map_or(&[][..], |s| s);\nlet b = h.get(16..32).map_or(&[][..], |s| s);\nlet c = h.get(32..).map_or(&[][..], |s| s);\n",
			wantCount:  3,
			wantOutput: "Fixed 3 violations in lib.rs\n",
		},
		{
			name:       "mixed_rules",
			content:    "a.unwrap_or(true); b.unwrap_or(i64::MAX); c.unwrap_or(String::new()); d.get(0..2).unwrap_or(&[]);",
			want:       "a.map_or(true, |v| v); b.map_or(i64::MAX, |v| v); c.map_or(String::new(), |v| v); d.get(0..2).map_or(&[][..], |s| s);",
			wantCount:  4,
			wantOutput: "Fixed 4 violations in lib.rs\n",
		},
		{
			name:      "empty_file",
			content:   "",
			want:      "",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := newMemFS(map[string]string{"lib.rs": tt.content})
			f, buf := newTestFixer(t, mfs, Options{})

			n, err := f.FixFile(testContext(t), "lib.rs")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, n)
			assert.Equal(t, tt.want, mfs.content("lib.rs"))
			assert.Equal(t, tt.wantOutput, buf.String())

			if tt.wantCount == 0 {
				assert.Zero(t, mfs.writes["lib.rs"], "unchanged file should not be rewritten")
			} else {
				assert.Equal(t, 1, mfs.writes["lib.rs"], "changed file should be written once")
			}
		})
	}
}

func TestFixFileErrors(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"binary.rs":   "x.unwrap_or(0)\xff\xfe",
		"readonly.rs": "x.unwrap_or(0);",
	})
	mfs.readOnly["readonly.rs"] = true
	f, buf := newTestFixer(t, mfs, Options{})
	ctx := testContext(t)

	_, err := f.FixFile(ctx, "missing.rs")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = f.FixFile(ctx, "binary.rs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotText))
	assert.Zero(t, mfs.writes["binary.rs"])

	_, err = f.FixFile(ctx, "readonly.rs")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, "x.unwrap_or(0);", mfs.content("readonly.rs"))

	assert.Empty(t, buf.String(), "failed files should not be reported as fixed")
}

func TestRun(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"a.rs": "let x = opt.unwrap_or(0);\n",
		"b.rs": "fn noop() {}\n",
		"c.rs": "a.unwrap_or(false); b.unwrap_or(true);\n",
	})
	f, buf := newTestFixer(t, mfs, Options{})

	summary, err := f.Run(testContext(t), walk.Paths("a.rs", "b.rs", "c.rs"))
	require.NoError(t, err)

	assert.Equal(t, &Summary{Files: 3, Changed: 2, Fixes: 3}, summary)
	assert.Equal(t, "let x = opt.map_or(0, |v| v);\n", mfs.content("a.rs"))
	assert.Equal(t, strings.Join([]string{
		"Fixed 1 violations in a.rs",
		"Fixed 2 violations in c.rs",
		"Total fixes: 3",
		"",
	}, "\n"), buf.String())
}

func TestRunUsesConsoleFromContext(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	mfs := newMemFS(map[string]string{"a.rs": "let x = opt.unwrap_or(0);\n"})
	f, err := New(Options{FS: mfs})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	ctx := log.NewContext(testContext(t), log.New(buf, zerolog.Nop()))

	summary, err := f.Run(ctx, walk.Paths("a.rs"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fixes)
	assert.Equal(t, "Fixed 1 violations in a.rs\nTotal fixes: 1\n", buf.String())
}

func TestRunIsIdempotent(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"a.rs": "let x = opt.unwrap_or(0);\nlet h = b.get(0..4).unwrap_or(&[]);\n",
	})
	f, buf := newTestFixer(t, mfs, Options{})
	ctx := testContext(t)

	first, err := f.Run(ctx, walk.Paths("a.rs"))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Fixes)

	buf.Reset()
	second, err := f.Run(ctx, walk.Paths("a.rs"))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fixes)
	assert.Equal(t, "Total fixes: 0\n", buf.String())
	assert.Equal(t, 1, mfs.writes["a.rs"])
}

func TestRunContinuesAfterFailure(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"a.rs": "a.unwrap_or(0);",
		"c.rs": "c.unwrap_or(0);",
	})
	f, buf := newTestFixer(t, mfs, Options{})

	summary, err := f.Run(testContext(t), walk.Paths("a.rs", "missing.rs", "c.rs"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilesFailed))
	assert.Contains(t, err.Error(), "1 of 3")

	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 2, summary.Fixes)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "missing.rs", summary.Failures[0].Path)

	assert.Equal(t, "c.map_or(0, |v| v);", mfs.content("c.rs"), "files after the failure should still be fixed")
	out := buf.String()
	assert.Contains(t, out, "❌ missing.rs: reading missing.rs")
	assert.Contains(t, out, "1 file(s) failed")
	assert.True(t, strings.HasSuffix(out, "Total fixes: 2\n"), "total should be the last line, got %q", out)
}

func TestRunFailFast(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"a.rs": "a.unwrap_or(0);",
		"c.rs": "c.unwrap_or(0);",
	})
	f, buf := newTestFixer(t, mfs, Options{FailFast: true})

	_, err := f.Run(testContext(t), walk.Paths("a.rs", "missing.rs", "c.rs"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.Equal(t, "a.map_or(0, |v| v);", mfs.content("a.rs"))
	assert.Equal(t, "c.unwrap_or(0);", mfs.content("c.rs"), "files after the failure should not be touched")
	assert.NotContains(t, buf.String(), "Total fixes")
}

func TestRunDiscoveryError(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.rs": "a.unwrap_or(0);"})
	walkErr := errors.New("walking crates: permission denied")
	seq := func(yield func(string, error) bool) {
		if !yield("a.rs", nil) {
			return
		}
		yield("", walkErr)
	}

	t.Run("continue", func(t *testing.T) {
		f, _ := newTestFixer(t, mfs, Options{})
		summary, err := f.Run(testContext(t), seq)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFilesFailed))
		require.Len(t, summary.Failures, 1)
		assert.Equal(t, walkFailure, summary.Failures[0].Path)
	})

	t.Run("fail_fast", func(t *testing.T) {
		f, _ := newTestFixer(t, mfs, Options{FailFast: true})
		_, err := f.Run(testContext(t), seq)
		require.Error(t, err)
		assert.True(t, errors.Is(err, walkErr))
	})
}

func TestRunParallel(t *testing.T) {
	files := map[string]string{}
	var paths []string
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("f%02d.rs", i)
		files[name] = "x.unwrap_or(0); y.unwrap_or(false);\n"
		paths = append(paths, name)
	}
	mfs := newMemFS(files)
	f, buf := newTestFixer(t, mfs, Options{Jobs: 8})

	summary, err := f.Run(testContext(t), walk.Paths(paths...))
	require.NoError(t, err)
	assert.Equal(t, 50, summary.Files)
	assert.Equal(t, 50, summary.Changed)
	assert.Equal(t, 100, summary.Fixes)
	for _, p := range paths {
		assert.Equal(t, "x.map_or(0, |v| v); y.map_or(false, |v| v);\n", mfs.content(p))
	}
	assert.Equal(t, 51, strings.Count(buf.String(), "\n"), "one line per file plus the total")
	assert.True(t, strings.HasSuffix(buf.String(), "Total fixes: 100\n"))
}

func TestRunDryRun(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"a.rs": "fn f() {\n    let x = opt.unwrap_or(0);\n}\n",
	})
	f, buf := newTestFixer(t, mfs, Options{DryRun: true})

	summary, err := f.Run(testContext(t), walk.Paths("a.rs"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fixes)
	assert.Zero(t, mfs.writes["a.rs"], "dry run should not write")

	out := buf.String()
	assert.Contains(t, out, "--- a.rs\n")
	assert.Contains(t, out, "-    let x = opt.unwrap_or(0);\n")
	assert.Contains(t, out, "+    let x = opt.map_or(0, |v| v);\n")
	assert.NotContains(t, out, "fn f()", "unchanged lines should not be printed")
	assert.Contains(t, out, "Would fix 1 violations in a.rs\n")
	assert.Contains(t, out, "Total fixes: 1\n")
}

func TestRunCancelled(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.rs": "a.unwrap_or(0);"})
	f, _ := newTestFixer(t, mfs, Options{})

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	_, err := f.Run(ctx, walk.Paths("a.rs"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "a.unwrap_or(0);", mfs.content("a.rs"))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Jobs: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs must not be negative")

	f, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.jobs)
	assert.Len(t, f.rules, 6)
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	ofs := OSFileSystem{}

	t.Run("keeps_mode", func(t *testing.T) {
		p := filepath.Join(dir, "exec.rs")
		require.NoError(t, os.WriteFile(p, []byte("old"), 0600))

		require.NoError(t, ofs.WriteFile(p, []byte("new")))

		data, err := ofs.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
		}
	})

	t.Run("read_only_follows_open_permission", func(t *testing.T) {
		p := filepath.Join(dir, "ro.rs")
		require.NoError(t, os.WriteFile(p, []byte("old"), 0444))

		err := ofs.WriteFile(p, []byte("new"))

		data, rerr := os.ReadFile(p)
		require.NoError(t, rerr)
		info, serr := os.Stat(p)
		require.NoError(t, serr)
		assert.Equal(t, os.FileMode(0444), info.Mode().Perm())

		if os.Geteuid() == 0 {
			// root may open any file for writing, so the mode bits alone do not refuse it
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
			return
		}
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrPermission)
		assert.Contains(t, err.Error(), "not writable")
		assert.Equal(t, "old", string(data))
	})

	t.Run("unchanged_file_keeps_mtime", func(t *testing.T) {
		p := filepath.Join(dir, "clean.rs")
		require.NoError(t, os.WriteFile(p, []byte("fn main() {}\n"), 0644))
		past := time.Now().Add(-time.Hour).Truncate(time.Second)
		require.NoError(t, os.Chtimes(p, past, past))

		f, buf := newTestFixer(t, ofs, Options{})
		n, err := f.FixFile(testContext(t), p)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, buf.String())

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, past.Equal(info.ModTime()), "mtime should be untouched")
	})
}
