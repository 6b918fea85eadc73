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

package rule

import (
	"regexp"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 📐 Rule is one anti-pattern to fix mapping.
//
// A Rule is either a *Literal or a *Transform. The set is closed; use Apply to run one.
type Rule interface {
	// RuleName returns the stable identifier of the rule
	RuleName() string
	// Describe returns a one-line human description
	Describe() string

	rule()
}

// 🚧 Guard lists bytes that may not immediately follow a match.
// A guarded match is left untouched. This stands in for a negative lookahead, which RE2 does not support.
type Guard string

// NotFollowedBy builds a Guard from the given bytes
func NotFollowedBy(chars string) Guard {
	return Guard(chars)
}

func (g Guard) blocks(content string, end int) bool {
	if g == "" || end >= len(content) {
		return false
	}
	return strings.IndexByte(string(g), content[end]) >= 0
}

// 🔤 Literal rewrites every non-overlapping match with a template.
// Template uses regexp.Expand syntax (${1}, ${name}).
type Literal struct {
	Name        string
	Description string
	Pattern     *regexp.Regexp
	Template    string
	Guard       Guard
}

func (l *Literal) RuleName() string { return l.Name }
func (l *Literal) Describe() string { return l.Description }
func (l *Literal) rule()            {}

func (l *Literal) apply(content string) (string, int) {
	matches := l.Pattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, 0
	}

	var b strings.Builder
	b.Grow(len(content))

	last, count := 0, 0
	for _, m := range matches {
		if l.Guard.blocks(content, m[1]) {
			continue
		}
		repl := l.Pattern.ExpandString(nil, l.Template, content, m)
		if string(repl) == content[m[0]:m[1]] {
			continue
		}
		b.WriteString(content[last:m[0]])
		b.Write(repl)
		last = m[1]
		count++
	}
	if count == 0 {
		return content, 0
	}

	b.WriteString(content[last:])
	return b.String(), count
}

// 🎯 Match is one occurrence handed to a Transform
type Match struct {
	Text  string // full matched text
	Start int    // byte offset of the match in the pre-rule content
	End   int

	groups []string
	names  []string
}

// Group returns the text of the named capture group, or "" when it did not participate
func (m Match) Group(name string) string {
	for i, n := range m.names {
		if n == name && n != "" {
			return m.groups[i]
		}
	}
	return ""
}

// Submatch returns the text of the i-th capture group, or "" when out of range
func (m Match) Submatch(i int) string {
	if i < 0 || i >= len(m.groups) {
		return ""
	}
	return m.groups[i]
}

func newMatch(content string, re *regexp.Regexp, loc []int) Match {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = content[loc[2*i]:loc[2*i+1]]
		}
	}
	return Match{
		Text:   content[loc[0]:loc[1]],
		Start:  loc[0],
		End:    loc[1],
		groups: groups,
		names:  re.SubexpNames(),
	}
}

// 🛠️ Transform rewrites each match through a callback.
//
// Matches are collected up front and spliced back from the last one to the first,
// so the offsets of the matches not yet processed stay valid.
type Transform struct {
	Name        string
	Description string
	Pattern     *regexp.Regexp
	Replace     func(Match) string
	Guard       Guard
}

func (t *Transform) RuleName() string { return t.Name }
func (t *Transform) Describe() string { return t.Description }
func (t *Transform) rule()            {}

func (t *Transform) apply(content string) (string, int) {
	matches := t.Pattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, 0
	}

	// guards and callbacks always see the content as it was before this rule ran
	original := content
	count := 0
	for i := len(matches) - 1; i >= 0; i-- {
		loc := matches[i]
		if t.Guard.blocks(original, loc[1]) {
			continue
		}
		repl := t.Replace(newMatch(original, t.Pattern, loc))
		if repl == original[loc[0]:loc[1]] {
			continue
		}
		content = content[:loc[0]] + repl + content[loc[1]:]
		count++
	}
	return content, count
}

// ⚡ Apply runs a single rule over content and returns the new content and the number of fixes
func Apply(r Rule, content string) (string, int, error) {
	switch r := r.(type) {
	case *Literal:
		out, n := r.apply(content)
		return out, n, nil
	case *Transform:
		out, n := r.apply(content)
		return out, n, nil
	default:
		return content, 0, errors.Errorf("unsupported rule type %T", r)
	}
}

// 🔍 Validate checks that every rule is usable and that names are unique
func Validate(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r == nil {
			return errors.Errorf("rule %d: rule is nil", i)
		}
		name := r.RuleName()
		if name == "" {
			return errors.Errorf("rule %d: name is required", i)
		}
		if seen[name] {
			return errors.Errorf("rule %d: duplicate name %q", i, name)
		}
		seen[name] = true

		switch r := r.(type) {
		case *Literal:
			if r.Pattern == nil {
				return errors.Errorf("rule %q: pattern is required", name)
			}
		case *Transform:
			if r.Pattern == nil {
				return errors.Errorf("rule %q: pattern is required", name)
			}
			if r.Replace == nil {
				return errors.Errorf("rule %q: replace func is required", name)
			}
		default:
			return errors.Errorf("rule %q: unsupported rule type %T", name, r)
		}
	}
	return nil
}
