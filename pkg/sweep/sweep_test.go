// Copyright 2026 Google LLC
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

package sweep

import (
	"errors"
	"testing"

	"srtctl/pkg/document"

	"github.com/google/go-cmp/cmp"
	"github.com/zclconf/go-cty/cty"
)

func mustDoc(t *testing.T, src string) cty.Value {
	t.Helper()
	v, err := document.FromYAML([]byte(src))
	if err != nil {
		t.Fatalf("FromYAML failed: %v", err)
	}
	return v
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]string{"conc=1,8,64", "page_size=32,64"})
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}

	want := Spec{
		{Name: "conc", Values: []string{"1", "8", "64"}},
		{Name: "page_size", Values: []string{"32", "64"}},
	}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Errorf("ParseSpec mismatch (-want +got):\n%s", diff)
	}
	if got := spec.Cardinality(); got != 6 {
		t.Errorf("Cardinality() = %d, want 6", got)
	}
}

func TestParseSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing equals", []string{"conc"}},
		{"empty name", []string{"=1,2"}},
		{"duplicate name", []string{"conc=1", "conc=2"}},
		{"empty value", []string{"conc=1,,2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSpec(tt.args); err == nil {
				t.Errorf("ParseSpec(%v) expected error, got nil", tt.args)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	doc := mustDoc(t, `
name: "sweep-{conc}"
backend:
  sglang_config:
    decode:
      max_running_requests: "{conc}"
      page_size: "{page_size}"
`)
	got := Tokens(doc)
	want := []string{"conc", "page_size"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandNoTokens(t *testing.T) {
	doc := mustDoc(t, `
name: plain-job
resources:
  agg_nodes: 1
`)
	variants, err := Expand(doc, Spec{{Name: "conc", Values: []string{"1", "2"}}})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("Expected 1 variant for a token-free document, got %d", len(variants))
	}
	if len(variants[0].Bindings) != 0 {
		t.Errorf("Expected no bindings, got %v", variants[0].Bindings)
	}
	if !variants[0].Doc.RawEquals(doc) {
		t.Error("Token-free document must expand to itself unchanged")
	}
}

func TestExpandCartesianProduct(t *testing.T) {
	doc := mustDoc(t, `
name: "sweep-{conc}-{page_size}"
flags:
  max_running_requests: "{conc}"
  page_size: "{page_size}"
`)
	spec := Spec{
		{Name: "conc", Values: []string{"8", "64"}},
		{Name: "page_size", Values: []string{"32", "64", "128"}},
	}

	variants, err := Expand(doc, spec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(variants) != 6 {
		t.Fatalf("Expected 6 variants, got %d", len(variants))
	}

	// First spec entry varies slowest, its value order preserved.
	wantFirst := []Binding{{Name: "conc", Value: "8"}, {Name: "page_size", Value: "32"}}
	if diff := cmp.Diff(wantFirst, variants[0].Bindings); diff != "" {
		t.Errorf("First variant bindings mismatch (-want +got):\n%s", diff)
	}
	wantLast := []Binding{{Name: "conc", Value: "64"}, {Name: "page_size", Value: "128"}}
	if diff := cmp.Diff(wantLast, variants[5].Bindings); diff != "" {
		t.Errorf("Last variant bindings mismatch (-want +got):\n%s", diff)
	}

	if got, want := variants[0].Label(), "conc=8_page_size=32"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
}

func TestExpandSubstitution(t *testing.T) {
	doc := mustDoc(t, `
name: "sweep-{conc}"
flags:
  max_running_requests: "{conc}"
  fraction: "{frac}"
  profile: "{on}"
`)
	spec := Spec{
		{Name: "conc", Values: []string{"128"}},
		{Name: "frac", Values: []string{"0.8"}},
		{Name: "on", Values: []string{"true"}},
	}

	variants, err := Expand(doc, spec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	v := variants[0].Doc

	// Whole-token scalars take the value's natural type.
	flags := v.GetAttr("flags")
	if got := flags.GetAttr("max_running_requests"); !got.RawEquals(cty.NumberIntVal(128)) {
		t.Errorf("Expected max_running_requests 128 as a number, got %#v", got)
	}
	if got := flags.GetAttr("fraction"); !got.RawEquals(cty.NumberFloatVal(0.8)) {
		t.Errorf("Expected fraction 0.8 as a number, got %#v", got)
	}
	if got := flags.GetAttr("profile"); !got.RawEquals(cty.True) {
		t.Errorf("Expected profile true as a bool, got %#v", got)
	}

	// Embedded tokens interpose textually.
	if got := v.GetAttr("name"); !got.RawEquals(cty.StringVal("sweep-128")) {
		t.Errorf("Expected name %q, got %#v", "sweep-128", got)
	}
}

func TestExpandMissingBinding(t *testing.T) {
	doc := mustDoc(t, `
flags:
  page_size: "{page_size}"
`)
	_, err := Expand(doc, Spec{{Name: "conc", Values: []string{"1"}}})
	if err == nil {
		t.Fatal("Expected BindingError for unbound token, got nil")
	}
	var berr *BindingError
	if !errors.As(err, &berr) {
		t.Fatalf("Expected BindingError, got %T: %v", err, err)
	}
	if berr.Token != "page_size" {
		t.Errorf("Expected token %q in error, got %q", "page_size", berr.Token)
	}
}

func TestExpandEmptyValues(t *testing.T) {
	doc := mustDoc(t, `
flags:
  page_size: "{page_size}"
`)
	_, err := Expand(doc, Spec{{Name: "page_size", Values: nil}})
	if err == nil {
		t.Fatal("Expected BindingError for empty candidate list, got nil")
	}
}

func TestExpandIgnoresUnreferencedParams(t *testing.T) {
	doc := mustDoc(t, `
flags:
  page_size: "{page_size}"
`)
	spec := Spec{
		{Name: "unused", Values: []string{"1", "2", "3"}},
		{Name: "page_size", Values: []string{"32", "64"}},
	}
	variants, err := Expand(doc, spec)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("Expected 2 variants (unused param ignored), got %d", len(variants))
	}
}
