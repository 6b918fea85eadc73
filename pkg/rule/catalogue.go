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
	"fmt"
	"regexp"
)

// a chained call after the fallback means the author already does something with the value
var chainGuard = NotFollowedBy(".")

const identityMapOr = ".map_or(${1}, |v| v)"

var (
	unwrapOrBool  = regexp.MustCompile(`\.unwrap_or\((true|false)\)`)
	unwrapOrInt   = regexp.MustCompile(`\.unwrap_or\((-?[0-9][0-9_]*(?:[iu](?:8|16|32|64|128|size))?)\)`)
	unwrapOrBound = regexp.MustCompile(`\.unwrap_or\(([iu](?:8|16|32|64|128|size)::(?:MAX|MIN))\)`)
	unwrapOrEmpty = regexp.MustCompile(`\.unwrap_or\(((?:String|Vec)::new\(\))\)`)
	unwrapOrNull  = regexp.MustCompile(`\.unwrap_or\(((?:serde_json::)?Value::Null)\)`)

	emptySliceGuard = regexp.MustCompile(
		`(?P<recv>[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)` +
			`\.get\(\s*(?P<start>[0-9][0-9_]*)?\s*\.\.(?:(?P<incl>=)?\s*(?P<end>[0-9][0-9_]*))?\s*\)` +
			`\.unwrap_or\(&\[\]\)`)
)

// 📚 Default returns the built-in catalogue in application order
func Default() []Rule {
	return []Rule{
		&Literal{
			Name:        "unwrap-or-bool",
			Description: "`.unwrap_or(true|false)` -> `.map_or(<bool>, |v| v)`",
			Pattern:     unwrapOrBool,
			Template:    identityMapOr,
			Guard:       chainGuard,
		},
		&Literal{
			Name:        "unwrap-or-int",
			Description: "`.unwrap_or(<integer literal>)` -> `.map_or(<integer>, |v| v)`",
			Pattern:     unwrapOrInt,
			Template:    identityMapOr,
			Guard:       chainGuard,
		},
		&Literal{
			Name:        "unwrap-or-bound",
			Description: "`.unwrap_or(<int>::MAX|MIN)` -> `.map_or(<bound>, |v| v)`",
			Pattern:     unwrapOrBound,
			Template:    identityMapOr,
			Guard:       chainGuard,
		},
		&Literal{
			Name:        "unwrap-or-empty",
			Description: "`.unwrap_or(String::new()|Vec::new())` -> `.map_or(<empty>, |v| v)`",
			Pattern:     unwrapOrEmpty,
			Template:    identityMapOr,
			Guard:       chainGuard,
		},
		&Literal{
			Name:        "unwrap-or-null",
			Description: "`.unwrap_or(Value::Null)` -> `.map_or(Value::Null, |v| v)`",
			Pattern:     unwrapOrNull,
			Template:    identityMapOr,
			Guard:       chainGuard,
		},
		// unguarded: both forms yield a &[T], so a chained call after the fix still type checks
		&Transform{
			Name:        "empty-slice-guard",
			Description: "`x.get(a..b).unwrap_or(&[])` -> `x.get(a..b).map_or(&[][..], |s| s)`",
			Pattern:     emptySliceGuard,
			Replace:     rewriteEmptySliceGuard,
		},
	}
}

// rewriteEmptySliceGuard drops the whitespace inside the range so the fixed form is canonical
func rewriteEmptySliceGuard(m Match) string {
	rng := m.Group("start") + ".." + m.Group("incl") + m.Group("end")
	return fmt.Sprintf("%s.get(%s).map_or(&[][..], |s| s)", m.Group("recv"), rng)
}
