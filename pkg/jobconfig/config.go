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

// Package jobconfig defines the typed model of a job document and owns its
// defaulting and cross-field validation.
//
// Parsing and resolution are two separate phases: Parse produces a raw
// config in which optional fields are still absent, and Resolver.Resolve
// turns a raw config into a fully-defaulted, validated one. Resolve never
// mutates its input.
package jobconfig

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GPUType identifies a supported GPU generation.
type GPUType string

// Precision identifies a model precision/quantization format.
type Precision string

// BenchmarkType selects what runs against the workers once they are up.
type BenchmarkType string

const (
	GPUTypeGB200 GPUType = "gb200"
	GPUTypeH100  GPUType = "h100"

	PrecisionFP4  Precision = "fp4"
	PrecisionFP8  Precision = "fp8"
	PrecisionFP16 Precision = "fp16"
	PrecisionBF16 Precision = "bf16"

	// BenchmarkManual launches the workers and runs nothing against them.
	BenchmarkManual  BenchmarkType = "manual"
	BenchmarkSABench BenchmarkType = "sa-bench"
	BenchmarkMMLU    BenchmarkType = "mmlu"
	BenchmarkGPQA    BenchmarkType = "gpqa"
)

// Role is the unit at which backend configuration and commands are
// generated independently.
type Role string

const (
	RolePrefill    Role = "prefill"
	RoleDecode     Role = "decode"
	RoleAggregated Role = "aggregated"
)

// ModelConfig identifies the model to serve.
type ModelConfig struct {
	Path      string    `yaml:"path"`
	Container string    `yaml:"container,omitempty"`
	Precision Precision `yaml:"precision"`
}

// ResourceConfig describes the job's resource topology. Exactly one of the
// disaggregated field set (prefill/decode) or the aggregated field set must
// be present.
type ResourceConfig struct {
	GPUType     GPUType `yaml:"gpu_type"`
	GPUsPerNode int     `yaml:"gpus_per_node,omitempty"`

	PrefillNodes   *int `yaml:"prefill_nodes,omitempty"`
	DecodeNodes    *int `yaml:"decode_nodes,omitempty"`
	PrefillWorkers *int `yaml:"prefill_workers,omitempty"`
	DecodeWorkers  *int `yaml:"decode_workers,omitempty"`

	AggNodes   *int `yaml:"agg_nodes,omitempty"`
	AggWorkers *int `yaml:"agg_workers,omitempty"`
}

// Disaggregated reports whether the topology splits prefill and decode onto
// separate worker roles.
func (r *ResourceConfig) Disaggregated() bool {
	return r.PrefillNodes != nil || r.DecodeNodes != nil ||
		r.PrefillWorkers != nil || r.DecodeWorkers != nil
}

// Roles returns the worker roles this topology launches.
func (r *ResourceConfig) Roles() []Role {
	if r.Disaggregated() {
		return []Role{RolePrefill, RoleDecode}
	}
	return []Role{RoleAggregated}
}

// NodesForRole returns the node count allocated to a role.
func (r *ResourceConfig) NodesForRole(role Role) int {
	switch role {
	case RolePrefill:
		return intOrZero(r.PrefillNodes)
	case RoleDecode:
		return intOrZero(r.DecodeNodes)
	default:
		return intOrZero(r.AggNodes)
	}
}

// WorkersForRole returns the worker count allocated to a role.
func (r *ResourceConfig) WorkersForRole(role Role) int {
	switch role {
	case RolePrefill:
		return intOrZero(r.PrefillWorkers)
	case RoleDecode:
		return intOrZero(r.DecodeWorkers)
	default:
		return intOrZero(r.AggWorkers)
	}
}

// TotalNodes returns the node count the scheduler must allocate.
func (r *ResourceConfig) TotalNodes() int {
	if r.Disaggregated() {
		return intOrZero(r.PrefillNodes) + intOrZero(r.DecodeNodes)
	}
	return intOrZero(r.AggNodes)
}

// WorkerLabel renders the worker counts in the compact form used in job
// directory names, e.g. "1P_2D" or "3A".
func (r *ResourceConfig) WorkerLabel() string {
	if r.Disaggregated() {
		return fmt.Sprintf("%dP_%dD", intOrZero(r.PrefillWorkers), intOrZero(r.DecodeWorkers))
	}
	return fmt.Sprintf("%dA", intOrZero(r.AggWorkers))
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// SlurmConfig carries the scheduler parameters of the job.
type SlurmConfig struct {
	Account   string `yaml:"account"`
	Partition string `yaml:"partition"`
	TimeLimit string `yaml:"time_limit,omitempty"`
}

// RoleFlags holds the free-form backend flags of one worker role. Keys are
// snake_case flag names; any flag the serving framework accepts is allowed.
type RoleFlags map[string]any

// SGLangConfig carries the per-role SGLang flag sections.
type SGLangConfig struct {
	Prefill    RoleFlags `yaml:"prefill,omitempty"`
	Decode     RoleFlags `yaml:"decode,omitempty"`
	Aggregated RoleFlags `yaml:"aggregated,omitempty"`
}

// ForRole returns the flag section declared for a role.
func (s *SGLangConfig) ForRole(role Role) RoleFlags {
	if s == nil {
		return nil
	}
	switch role {
	case RolePrefill:
		return s.Prefill
	case RoleDecode:
		return s.Decode
	default:
		return s.Aggregated
	}
}

// BackendConfig selects and parameterizes the serving framework. When the
// whole section is absent from the document it is synthesized with defaults.
type BackendConfig struct {
	Type string `yaml:"type,omitempty"`

	// GPUType is the combined hardware/precision tag, computed as
	// "<resources.gpu_type>-<model.precision>" when not set explicitly.
	GPUType string `yaml:"gpu_type,omitempty"`

	PrefillEnvironment map[string]string `yaml:"prefill_environment,omitempty"`
	DecodeEnvironment  map[string]string `yaml:"decode_environment,omitempty"`
	AggEnvironment     map[string]string `yaml:"agg_environment,omitempty"`

	SGLang *SGLangConfig `yaml:"sglang_config,omitempty"`

	EnableMultipleFrontends *bool `yaml:"enable_multiple_frontends,omitempty"`
	NumAdditionalFrontends  *int  `yaml:"num_additional_frontends,omitempty"`

	// EnableProfiling switches the launch entry point to a profiling-capable
	// launcher running a single unified role.
	EnableProfiling bool `yaml:"enable_profiling,omitempty"`
}

// EnvironmentForRole returns the environment variable mapping of a role.
func (b *BackendConfig) EnvironmentForRole(role Role) map[string]string {
	switch role {
	case RolePrefill:
		return b.PrefillEnvironment
	case RoleDecode:
		return b.DecodeEnvironment
	default:
		return b.AggEnvironment
	}
}

// BenchmarkConfig describes the benchmark run once workers are live.
type BenchmarkConfig struct {
	Type BenchmarkType `yaml:"type,omitempty"`

	// sa-bench parameters.
	ISL           *int   `yaml:"isl,omitempty"`
	OSL           *int   `yaml:"osl,omitempty"`
	Concurrencies []int  `yaml:"concurrencies,omitempty"`
	ReqRate       string `yaml:"req_rate,omitempty"`
}

// Enabled reports whether a benchmark actually executes; manual mode only
// launches workers.
func (b *BenchmarkConfig) Enabled() bool {
	return b.Type != BenchmarkManual
}

// Arg renders the benchmark parameters in the positional form the benchmark
// scripts consume: "<isl> <osl> <c1xc2x...> <req_rate>". Empty for
// non-sa-bench types.
func (b *BenchmarkConfig) Arg() string {
	if b.Type != BenchmarkSABench {
		return ""
	}
	concs := make([]string, len(b.Concurrencies))
	for i, c := range b.Concurrencies {
		concs[i] = fmt.Sprintf("%d", c)
	}
	return fmt.Sprintf("%d %d %s %s",
		intOrZero(b.ISL), intOrZero(b.OSL), strings.Join(concs, "x"), b.ReqRate)
}

// JobConfig is the complete job description.
type JobConfig struct {
	Name      string           `yaml:"name"`
	Model     ModelConfig      `yaml:"model"`
	Resources ResourceConfig   `yaml:"resources"`
	Slurm     SlurmConfig      `yaml:"slurm"`
	Backend   *BackendConfig   `yaml:"backend,omitempty"`
	Benchmark *BenchmarkConfig `yaml:"benchmark,omitempty"`

	UseInitLocation  bool  `yaml:"use_init_location,omitempty"`
	EnableConfigDump *bool `yaml:"enable_config_dump,omitempty"`
}

// Parse decodes a job document into a raw, not-yet-resolved config. Unknown
// fields are rejected so typos surface here rather than as silently ignored
// settings.
func Parse(data []byte) (*JobConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg JobConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse job document: %w", err)
	}
	return &cfg, nil
}

// ToYAML serializes the config, post-defaulting, for the per-job artifact
// directory.
func (c *JobConfig) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resolved config: %w", err)
	}
	return out, nil
}
