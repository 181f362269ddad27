// Copyright 2021 Silvio Böhler
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compare

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type pair struct {
	key   int
	value string
}

func TestSortIsStable(t *testing.T) {
	got := []pair{{2, "a"}, {1, "b"}, {2, "c"}, {1, "d"}}

	Sort(got, Desc(By(func(p pair) int { return p.key }, Ordered[int])))

	want := []pair{{2, "a"}, {2, "c"}, {1, "b"}, {1, "d"}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(pair{})); diff != "" {
		t.Fatalf("Sort() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestCombine(t *testing.T) {
	got := []pair{{2, "b"}, {1, "b"}, {2, "a"}}

	Sort(got, Combine(
		By(func(p pair) string { return p.value }, Ordered[string]),
		By(func(p pair) int { return p.key }, Ordered[int]),
	))

	want := []pair{{2, "a"}, {1, "b"}, {2, "b"}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(pair{})); diff != "" {
		t.Fatalf("Sort() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestCollated(t *testing.T) {
	got := []string{"b", "Ä", "a", "B"}

	Sort(got, Collated(collate.New(language.English)))

	want := []string{"a", "Ä", "b", "B"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Sort() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}
