// Copyright 2025 Tom Barlow
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

package external

import (
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"
)

// versionEnv is the evaluation context an ExprVersionCompatibility rule
// runs against.
type versionEnv struct {
	Platform string
	Compile  string
}

// ExprVersionCompatibility is a VersionCompatibility backed by a pair of
// expr-lang/expr boolean expressions, compiled once at construction and
// evaluated per call. Expressions see the platform and compile version
// strings as Platform and Compile.
type ExprVersionCompatibility struct {
	accept *vm.Program
	refuse *vm.Program
}

// NewExprVersionCompatibility compiles acceptExpr and refuseExpr.
// An empty expression always evaluates to false.
func NewExprVersionCompatibility(acceptExpr, refuseExpr string) (*ExprVersionCompatibility, error) {
	accept, err := compileRule(acceptExpr)
	if err != nil {
		return nil, jcerrors.WrapKind(jcerrors.Invalid, err, "compile accept rule")
	}
	refuse, err := compileRule(refuseExpr)
	if err != nil {
		return nil, jcerrors.WrapKind(jcerrors.Invalid, err, "compile refuse rule")
	}
	return &ExprVersionCompatibility{accept: accept, refuse: refuse}, nil
}

func compileRule(rule string) (*vm.Program, error) {
	if rule == "" {
		return nil, nil
	}
	return expr.Compile(rule, expr.Env(versionEnv{}), expr.AsBool())
}

// Accept implements VersionCompatibility.
func (c *ExprVersionCompatibility) Accept(platform, compile string) bool {
	return runRule(c.accept, platform, compile)
}

// Refuse implements VersionCompatibility.
func (c *ExprVersionCompatibility) Refuse(platform, compile string) bool {
	return runRule(c.refuse, platform, compile)
}

func runRule(program *vm.Program, platform, compile string) bool {
	if program == nil {
		return false
	}
	out, err := expr.Run(program, versionEnv{Platform: platform, Compile: compile})
	if err != nil {
		return false
	}
	result, _ := out.(bool)
	return result
}

// SortedVersionStatus is a VersionStatus over a fixed list of versions kept
// in lexical string order, each individually marked active or retired.
type SortedVersionStatus struct {
	versions []string
	active   map[string]bool
}

// NewSortedVersionStatus builds a VersionStatus from version strings and
// the subset of them still active. The version list is sorted as plain
// strings (sort.Strings), so it is oldest first only while numeric
// components have equal width: "7.100.1" sorts before "7.99.0".
func NewSortedVersionStatus(versions []string, activeVersions []string) *SortedVersionStatus {
	sorted := append([]string(nil), versions...)
	sort.Strings(sorted)

	active := make(map[string]bool, len(activeVersions))
	for _, v := range activeVersions {
		active[v] = true
	}
	return &SortedVersionStatus{versions: sorted, active: active}
}

// OrderedVersions implements VersionStatus.
func (s *SortedVersionStatus) OrderedVersions() []string {
	return append([]string(nil), s.versions...)
}

// IsActive implements VersionStatus.
func (s *SortedVersionStatus) IsActive(version string) bool {
	return s.active[version]
}
