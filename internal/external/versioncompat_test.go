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

import "testing"

func TestExprVersionCompatibility_Accept(t *testing.T) {
	c, err := NewExprVersionCompatibility(`Platform == Compile`, `false`)
	if err != nil {
		t.Fatalf("NewExprVersionCompatibility() error = %v", err)
	}

	if !c.Accept("7.100.1", "7.100.1") {
		t.Error("expected matching versions to be accepted")
	}
	if c.Accept("7.100.1", "7.99.0") {
		t.Error("expected mismatched versions to be rejected")
	}
}

func TestExprVersionCompatibility_Refuse(t *testing.T) {
	c, err := NewExprVersionCompatibility(`true`, `Platform < Compile`)
	if err != nil {
		t.Fatalf("NewExprVersionCompatibility() error = %v", err)
	}

	if !c.Refuse("7.1", "7.9") {
		t.Error("expected an older platform than compile version to be refused")
	}
	if c.Refuse("7.9", "7.1") {
		t.Error("expected a platform newer than compile version to not be refused")
	}
}

func TestExprVersionCompatibility_EmptyRuleAlwaysFalse(t *testing.T) {
	c, err := NewExprVersionCompatibility("", "")
	if err != nil {
		t.Fatalf("NewExprVersionCompatibility() error = %v", err)
	}
	if c.Accept("a", "b") {
		t.Error("empty accept rule should never accept")
	}
	if c.Refuse("a", "b") {
		t.Error("empty refuse rule should never refuse")
	}
}

func TestExprVersionCompatibility_InvalidExpressionFailsToCompile(t *testing.T) {
	if _, err := NewExprVersionCompatibility(`Platform +++`, ""); err == nil {
		t.Error("expected a compile error for a malformed accept expression")
	}
}

func TestSortedVersionStatus(t *testing.T) {
	s := NewSortedVersionStatus(
		[]string{"7.100.1", "7.99.0", "7.101.0"},
		[]string{"7.101.0"},
	)

	got := s.OrderedVersions()
	want := []string{"7.100.1", "7.101.0", "7.99.0"} // lexical sort, matches the teacher's plain sort.Strings
	if len(got) != len(want) {
		t.Fatalf("OrderedVersions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OrderedVersions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if !s.IsActive("7.101.0") {
		t.Error("expected 7.101.0 to be active")
	}
	if s.IsActive("7.99.0") {
		t.Error("expected 7.99.0 to be inactive")
	}
}

func TestSortedVersionStatus_OrderedVersionsReturnsACopy(t *testing.T) {
	s := NewSortedVersionStatus([]string{"1.0", "2.0"}, nil)
	versions := s.OrderedVersions()
	versions[0] = "mutated"

	if s.OrderedVersions()[0] == "mutated" {
		t.Error("OrderedVersions should return a copy, not the internal slice")
	}
}
