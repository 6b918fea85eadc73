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
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/walteh/mapor/pkg/rule"
	"gitlab.com/tozd/go/errors"
)

// newRulesCmd lists the built-in rule catalogue
func newRulesCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the rewrite rules in the order they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := pterm.TableData{{"#", "rule", "kind", "rewrites"}}
			for i, r := range rule.Default() {
				kind := "literal"
				if _, ok := r.(*rule.Transform); ok {
					kind = "transform"
				}
				data = append(data, []string{strconv.Itoa(i + 1), r.RuleName(), kind, r.Describe()})
			}

			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return errors.Errorf("rendering rules: %w", err)
			}
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
}
