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

// Package walk discovers the files a run should look at.
package walk

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// ErrRootNotFound is returned when the root to scan does not exist or is not a directory
var ErrRootNotFound = errors.Base("root directory not found")

// 📂 CheckRoot verifies that root is an existing directory
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("%s: %w", root, ErrRootNotFound)
		}
		return errors.Errorf("checking root %s: %w", root, err)
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory: %w", root, ErrRootNotFound)
	}
	return nil
}

// 🔍 Files lazily yields the path of every regular file under root that matches one of the
// include globs and none of the exclude globs.
//
// Globs use doublestar syntax and are matched against the slash separated path relative to
// root. An excluded directory is not descended into. Paths are yielded joined onto root, in
// lexical order. A walk error is yielded once with an empty path and ends the sequence.
func Files(ctx context.Context, root string, include, exclude []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := fs.WalkDir(os.DirFS(root), ".", func(rel string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			if d.IsDir() {
				// "dir/**" excludes everything below dir, so the directory itself is skipped
				if matchAny(exclude, rel) || matchAny(exclude, rel+"/**") {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !matchAny(include, rel) || matchAny(exclude, rel) {
				return nil
			}

			if !yield(filepath.Join(root, filepath.FromSlash(rel)), nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", errors.Errorf("walking %s: %w", root, err))
		}
	}
}

// 📋 Collect drains a path sequence, stopping at the first error
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var paths []string
	for p, err := range seq {
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// 📋 Paths turns a fixed list into a path sequence
func Paths(paths ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range paths {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		// patterns are validated by config; a bad one simply never matches
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
