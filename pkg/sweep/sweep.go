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

// Package sweep expands a templated configuration document into the
// cartesian product of its placeholder bindings.
//
// A placeholder is a {name} token appearing inside any string scalar of the
// document, either occupying the whole scalar or embedded in a larger
// string. Two occurrences of the same name anywhere in the tree are the same
// token and receive the same bound value within one expanded variant.
package sweep

import (
	"fmt"
	"regexp"
	"strings"

	"srtctl/pkg/document"

	"github.com/zclconf/go-cty/cty"
)

var tokenRe = regexp.MustCompile(`\{([A-Za-z0-9_-]+)\}`)

// Param is one sweep dimension: a token name and its ordered candidate
// values.
type Param struct {
	Name   string
	Values []string
}

// Spec is the ordered set of sweep dimensions for one invocation.
type Spec []Param

// BindingError reports a token that cannot be bound.
type BindingError struct {
	Token  string
	Reason string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("sweep token {%s}: %s", e.Token, e.Reason)
}

// ParseSpec parses repeated "name=v1,v2,..." arguments into a Spec,
// preserving argument order.
func ParseSpec(args []string) (Spec, error) {
	var spec Spec
	seen := map[string]bool{}
	for _, arg := range args {
		name, rawValues, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid sweep parameter %q: expected name=v1,v2,...", arg)
		}
		if seen[name] {
			return nil, fmt.Errorf("sweep parameter %q given more than once", name)
		}
		seen[name] = true

		values := strings.Split(rawValues, ",")
		for _, v := range values {
			if v == "" {
				return nil, &BindingError{Token: name, Reason: "candidate list contains an empty value"}
			}
		}
		spec = append(spec, Param{Name: name, Values: values})
	}
	return spec, nil
}

// Cardinality is the number of variants a full expansion produces: the
// product of all candidate-list lengths.
func (s Spec) Cardinality() int {
	n := 1
	for _, p := range s {
		n *= len(p.Values)
	}
	return n
}

func (s Spec) lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Binding is one token bound to one literal value.
type Binding struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is one fully-substituted document together with the bindings that
// produced it.
type Variant struct {
	Bindings []Binding
	Doc      cty.Value
}

// Label renders the bindings as "a=1_b=2" for naming purposes; empty when
// the document had no placeholders.
func (v Variant) Label() string {
	return Label(v.Bindings)
}

// Label renders a binding tuple as "a=1_b=2". The tuple is unique per
// variant within one expansion, so the label is safe to use in directory
// names.
func Label(bindings []Binding) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = fmt.Sprintf("%s=%s", b.Name, b.Value)
	}
	return strings.Join(parts, "_")
}

// Tokens collects the distinct placeholder names referenced anywhere in the
// document, in deterministic tree order.
func Tokens(doc cty.Value) []string {
	var names []string
	seen := map[string]bool{}
	cty.Walk(doc, func(_ cty.Path, v cty.Value) (bool, error) {
		if !v.IsNull() && v.Type() == cty.String {
			for _, m := range tokenRe.FindAllStringSubmatch(v.AsString(), -1) {
				if !seen[m[1]] {
					seen[m[1]] = true
					names = append(names, m[1])
				}
			}
		}
		return true, nil
	})
	return names
}

// Expand enumerates the cartesian product of all placeholder bindings. A
// document without placeholders expands to exactly one variant, unchanged,
// regardless of the spec. Spec entries never referenced by the document are
// ignored; a referenced token missing from the spec, or bound to an empty
// candidate list, is a BindingError reported before any variant is built.
func Expand(doc cty.Value, spec Spec) ([]Variant, error) {
	tokens := Tokens(doc)
	if len(tokens) == 0 {
		return []Variant{{Doc: doc}}, nil
	}

	// Dimensions follow the spec's declared order, restricted to tokens the
	// document actually references.
	var dims []Param
	bound := map[string]bool{}
	for _, p := range spec {
		for _, t := range tokens {
			if p.Name == t {
				dims = append(dims, p)
				bound[t] = true
				break
			}
		}
	}
	for _, t := range tokens {
		if !bound[t] {
			return nil, &BindingError{Token: t, Reason: "referenced by the document but no candidate values were supplied"}
		}
	}
	for _, d := range dims {
		if len(d.Values) == 0 {
			return nil, &BindingError{Token: d.Name, Reason: "candidate list is empty, expansion would produce zero jobs"}
		}
	}

	total := 1
	for _, d := range dims {
		total *= len(d.Values)
	}

	variants := make([]Variant, 0, total)
	indices := make([]int, len(dims))
	for {
		bindings := make([]Binding, len(dims))
		values := make(map[string]string, len(dims))
		for i, d := range dims {
			bindings[i] = Binding{Name: d.Name, Value: d.Values[indices[i]]}
			values[d.Name] = d.Values[indices[i]]
		}

		substituted, err := substitute(doc, values)
		if err != nil {
			return nil, err
		}
		variants = append(variants, Variant{Bindings: bindings, Doc: substituted})

		// Advance odometer-style, rightmost dimension fastest.
		i := len(indices) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[i].Values) {
				break
			}
			indices[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return variants, nil
}

// substitute rewrites every string scalar containing tokens. A token
// occupying the entire scalar is replaced by its value with the natural
// scalar type inferred; tokens embedded in larger strings interpose their
// value textually.
func substitute(doc cty.Value, values map[string]string) (cty.Value, error) {
	return cty.Transform(doc, func(_ cty.Path, v cty.Value) (cty.Value, error) {
		if v.IsNull() || v.Type() != cty.String {
			return v, nil
		}
		s := v.AsString()
		if m := tokenRe.FindStringSubmatch(s); m != nil && m[0] == s {
			if val, ok := values[m[1]]; ok {
				return document.InferScalar(val), nil
			}
			return v, nil
		}
		out := tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
			name := tok[1 : len(tok)-1]
			if val, ok := values[name]; ok {
				return val
			}
			return tok
		})
		return cty.StringVal(out), nil
	})
}
