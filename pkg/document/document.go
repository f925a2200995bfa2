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

// Package document represents configuration documents as cty value trees.
//
// A document is an arbitrary nesting of mappings, sequences and scalars.
// Holding it as a cty.Value keeps mapping/sequence/scalar distinctions
// explicit, so tree transforms (alias filling, sweep substitution) are a
// single recursive operation instead of ad hoc string handling. Documents
// are never mutated in place; every operation returns a new value.
package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// FromYAML parses YAML bytes into a cty value tree. Mappings become objects,
// sequences become tuples, scalars become strings, numbers or bools.
func FromYAML(data []byte) (cty.Value, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cty.NilVal, fmt.Errorf("failed to parse YAML document: %w", err)
	}
	return fromGo(raw)
}

// ToYAML serializes a cty value tree back to YAML. Mapping keys are emitted
// in sorted order so output is reproducible across runs.
func ToYAML(v cty.Value) ([]byte, error) {
	node, err := toNode(v)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(node)
}

func fromGo(raw any) (cty.Value, error) {
	switch val := raw.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case string:
		return cty.StringVal(val), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, item := range val {
			elem, err := fromGo(item)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = elem
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, item := range val {
			attr, err := fromGo(item)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = attr
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported YAML value of type %T", raw)
	}
}

func toNode(v cty.Value) (*yaml.Node, error) {
	if v.IsNull() {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.AsString()}, nil
	case ty == cty.Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.True())}, nil
	case ty == cty.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: formatNumber(v)}, nil
	case ty.IsTupleType() || ty.IsListType():
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			child, err := toNode(elem)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case ty.IsObjectType() || ty.IsMapType():
		attrs := v.AsValueMap()
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			child, err := toNode(attrs[k])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: k}, child)
		}
		return node, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func formatNumber(v cty.Value) string {
	bf := v.AsBigFloat()
	if bf.IsInt() {
		i, _ := bf.Int64()
		return strconv.FormatInt(i, 10)
	}
	f, _ := bf.Float64()
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// InferScalar converts a substituted string to its natural scalar type: an
// integer or decimal yields a number, "true"/"false" yields a bool, anything
// else stays a string.
func InferScalar(s string) cty.Value {
	if s == "true" {
		return cty.True
	}
	if s == "false" {
		return cty.False
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return cty.NumberIntVal(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return cty.NumberFloatVal(f)
	}
	return cty.StringVal(s)
}
