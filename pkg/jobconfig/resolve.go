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

package jobconfig

import (
	"fmt"
	"regexp"
	"strings"

	"srtctl/pkg/cluster"

	"github.com/agext/levenshtein"
)

const (
	defaultGPUsPerNode = 4
	defaultTimeLimit   = "04:00:00"
	defaultBackendType = "sglang"
	defaultFrontends   = 9
)

var timeLimitRe = regexp.MustCompile(`^\d{1,3}:\d{2}:\d{2}$`)

// FieldError is a validation failure attributed to one field path.
type FieldError struct {
	Path string
	Msg  string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// ValidationError aggregates every failure found in one document, so a user
// fixes a config in one round trip instead of one field at a time.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("invalid job config:\n  %s", strings.Join(msgs, "\n  "))
}

// Resolver turns raw configs into fully-defaulted, validated ones. Cluster
// settings are injected here rather than read from any ambient state.
type Resolver struct {
	Settings *cluster.Settings

	// ArithmeticHook, when set, cross-checks parallelism degrees against the
	// GPUs actually allocated per role. There is deliberately no default
	// implementation: the upstream tooling never enforced this arithmetic,
	// and jobs in the wild rely on that.
	ArithmeticHook func(*JobConfig) error
}

// Resolve applies cluster defaults and alias resolution, fills computed and
// defaulted fields, and validates the result. The input is not mutated; on
// success the returned config is complete and immutable by convention.
func (r *Resolver) Resolve(raw *JobConfig) (*JobConfig, error) {
	cfg := raw.clone()

	settings := r.Settings
	if settings == nil {
		settings = &cluster.Settings{}
	}
	applyClusterDefaults(cfg, settings)
	applyDefaults(cfg, settings)

	var errs []FieldError
	errs = append(errs, validateIdentity(cfg)...)
	errs = append(errs, validateModel(cfg)...)
	errs = append(errs, validateResources(cfg)...)
	errs = append(errs, validateSlurm(cfg)...)
	errs = append(errs, validateBenchmark(cfg)...)
	errs = append(errs, validateProfiling(cfg)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	if r.ArithmeticHook != nil {
		if err := r.ArithmeticHook(cfg); err != nil {
			return nil, fmt.Errorf("resource arithmetic check failed: %w", err)
		}
	}
	return cfg, nil
}

func applyClusterDefaults(cfg *JobConfig, s *cluster.Settings) {
	if cfg.Slurm.Account == "" {
		cfg.Slurm.Account = s.DefaultAccount
	}
	if cfg.Slurm.Partition == "" {
		cfg.Slurm.Partition = s.DefaultPartition
	}
	if cfg.Slurm.TimeLimit == "" {
		cfg.Slurm.TimeLimit = s.DefaultTimeLimit
	}
	if cfg.Model.Container == "" {
		cfg.Model.Container = s.DefaultContainer
	}

	cfg.Model.Path = s.ResolveModel(cfg.Model.Path)
	cfg.Model.Container = s.ResolveContainer(cfg.Model.Container)
}

func applyDefaults(cfg *JobConfig, s *cluster.Settings) {
	if cfg.Resources.GPUsPerNode == 0 {
		if s.GPUsPerNode > 0 {
			cfg.Resources.GPUsPerNode = s.GPUsPerNode
		} else {
			cfg.Resources.GPUsPerNode = defaultGPUsPerNode
		}
	}
	if cfg.Slurm.TimeLimit == "" {
		cfg.Slurm.TimeLimit = defaultTimeLimit
	}

	if cfg.Backend == nil {
		cfg.Backend = &BackendConfig{}
	}
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = defaultBackendType
	}
	if cfg.Backend.GPUType == "" {
		cfg.Backend.GPUType = fmt.Sprintf("%s-%s", cfg.Resources.GPUType, cfg.Model.Precision)
	}
	if cfg.Backend.EnableMultipleFrontends == nil {
		t := true
		cfg.Backend.EnableMultipleFrontends = &t
	}
	if cfg.Backend.NumAdditionalFrontends == nil {
		n := defaultFrontends
		cfg.Backend.NumAdditionalFrontends = &n
	}

	if cfg.Benchmark == nil {
		cfg.Benchmark = &BenchmarkConfig{}
	}
	if cfg.Benchmark.Type == "" {
		cfg.Benchmark.Type = BenchmarkManual
	}
	if cfg.Benchmark.Type == BenchmarkSABench && cfg.Benchmark.ReqRate == "" {
		cfg.Benchmark.ReqRate = "inf"
	}

	if cfg.EnableConfigDump == nil {
		t := true
		cfg.EnableConfigDump = &t
	}
}

func validateIdentity(cfg *JobConfig) []FieldError {
	if cfg.Name == "" {
		return []FieldError{{Path: "name", Msg: "is required"}}
	}
	return nil
}

func validateModel(cfg *JobConfig) []FieldError {
	var errs []FieldError
	if cfg.Model.Path == "" {
		errs = append(errs, FieldError{Path: "model.path", Msg: "is required"})
	}
	if cfg.Model.Container == "" {
		errs = append(errs, FieldError{Path: "model.container", Msg: "is required"})
	}
	precisions := []string{string(PrecisionFP4), string(PrecisionFP8), string(PrecisionFP16), string(PrecisionBF16)}
	if !inDomain(string(cfg.Model.Precision), precisions) {
		errs = append(errs, domainError("model.precision", string(cfg.Model.Precision), precisions))
	}
	return errs
}

func validateResources(cfg *JobConfig) []FieldError {
	var errs []FieldError
	res := &cfg.Resources

	gpuTypes := []string{string(GPUTypeGB200), string(GPUTypeH100)}
	if !inDomain(string(res.GPUType), gpuTypes) {
		errs = append(errs, domainError("resources.gpu_type", string(res.GPUType), gpuTypes))
	}
	if res.GPUsPerNode <= 0 {
		errs = append(errs, FieldError{
			Path: "resources.gpus_per_node",
			Msg:  fmt.Sprintf("must be a positive integer, got %d", res.GPUsPerNode),
		})
	}

	hasDisagg := res.Disaggregated()
	hasAgg := res.AggNodes != nil || res.AggWorkers != nil
	switch {
	case hasDisagg && hasAgg:
		errs = append(errs, FieldError{
			Path: "resources",
			Msg:  "cannot mix disaggregated (prefill_*/decode_*) and aggregated (agg_*) fields",
		})
	case !hasDisagg && !hasAgg:
		errs = append(errs, FieldError{
			Path: "resources",
			Msg:  "must specify either disaggregated (prefill_*/decode_*) or aggregated (agg_*) topology",
		})
	case hasDisagg:
		errs = append(errs, requirePositive("resources.prefill_nodes", res.PrefillNodes)...)
		errs = append(errs, requirePositive("resources.decode_nodes", res.DecodeNodes)...)
		errs = append(errs, requirePositive("resources.prefill_workers", res.PrefillWorkers)...)
		errs = append(errs, requirePositive("resources.decode_workers", res.DecodeWorkers)...)
	default:
		errs = append(errs, requirePositive("resources.agg_nodes", res.AggNodes)...)
		errs = append(errs, requirePositive("resources.agg_workers", res.AggWorkers)...)
	}
	return errs
}

func validateSlurm(cfg *JobConfig) []FieldError {
	var errs []FieldError
	if cfg.Slurm.Account == "" {
		errs = append(errs, FieldError{Path: "slurm.account", Msg: "is required and no cluster default is set"})
	}
	if cfg.Slurm.Partition == "" {
		errs = append(errs, FieldError{Path: "slurm.partition", Msg: "is required and no cluster default is set"})
	}
	if cfg.Slurm.TimeLimit != "" && !timeLimitRe.MatchString(cfg.Slurm.TimeLimit) {
		errs = append(errs, FieldError{
			Path: "slurm.time_limit",
			Msg:  fmt.Sprintf("must be in HH:MM:SS form, got %q", cfg.Slurm.TimeLimit),
		})
	}
	return errs
}

func validateBenchmark(cfg *JobConfig) []FieldError {
	var errs []FieldError
	b := cfg.Benchmark

	types := []string{string(BenchmarkManual), string(BenchmarkSABench), string(BenchmarkMMLU), string(BenchmarkGPQA)}
	if !inDomain(string(b.Type), types) {
		errs = append(errs, domainError("benchmark.type", string(b.Type), types))
		return errs
	}

	if b.Type == BenchmarkSABench {
		if b.ISL == nil {
			errs = append(errs, FieldError{Path: "benchmark.isl", Msg: "is required for sa-bench"})
		}
		if b.OSL == nil {
			errs = append(errs, FieldError{Path: "benchmark.osl", Msg: "is required for sa-bench"})
		}
		if len(b.Concurrencies) == 0 {
			errs = append(errs, FieldError{Path: "benchmark.concurrencies", Msg: "must list at least one concurrency for sa-bench"})
		}
	}
	return errs
}

// validateProfiling enforces the profiling constraints in one place; the
// backend assumes a profiling config reaching it is already legal.
func validateProfiling(cfg *JobConfig) []FieldError {
	if cfg.Backend == nil || !cfg.Backend.EnableProfiling {
		return nil
	}
	var errs []FieldError
	for _, role := range cfg.Resources.Roles() {
		if cfg.Resources.WorkersForRole(role) > 1 {
			errs = append(errs, FieldError{
				Path: "backend.enable_profiling",
				Msg:  fmt.Sprintf("profiling supports at most one %s worker", role),
			})
		}
	}
	if cfg.Benchmark != nil && cfg.Benchmark.Type != BenchmarkManual {
		errs = append(errs, FieldError{
			Path: "backend.enable_profiling",
			Msg:  fmt.Sprintf("profiling requires benchmark type %q, got %q", BenchmarkManual, cfg.Benchmark.Type),
		})
	}
	return errs
}

func requirePositive(path string, p *int) []FieldError {
	if p == nil {
		return []FieldError{{Path: path, Msg: "is required for this topology"}}
	}
	if *p < 1 {
		return []FieldError{{Path: path, Msg: fmt.Sprintf("must be at least 1, got %d", *p)}}
	}
	return nil
}

func inDomain(v string, domain []string) bool {
	for _, d := range domain {
		if v == d {
			return true
		}
	}
	return false
}

func domainError(path, got string, domain []string) FieldError {
	msg := fmt.Sprintf("must be one of [%s], got %q", strings.Join(domain, ", "), got)
	if hint := nearest(got, domain); hint != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", hint)
	}
	return FieldError{Path: path, Msg: msg}
}

// nearest suggests the closest domain value within a small edit distance.
func nearest(got string, domain []string) string {
	if got == "" {
		return ""
	}
	best, bestDist := "", 3
	for _, d := range domain {
		if dist := levenshtein.Distance(got, d, nil); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}

func (c *JobConfig) clone() *JobConfig {
	out := *c
	out.Resources.PrefillNodes = cloneInt(c.Resources.PrefillNodes)
	out.Resources.DecodeNodes = cloneInt(c.Resources.DecodeNodes)
	out.Resources.PrefillWorkers = cloneInt(c.Resources.PrefillWorkers)
	out.Resources.DecodeWorkers = cloneInt(c.Resources.DecodeWorkers)
	out.Resources.AggNodes = cloneInt(c.Resources.AggNodes)
	out.Resources.AggWorkers = cloneInt(c.Resources.AggWorkers)
	out.EnableConfigDump = cloneBool(c.EnableConfigDump)

	if c.Backend != nil {
		b := *c.Backend
		b.PrefillEnvironment = cloneStringMap(c.Backend.PrefillEnvironment)
		b.DecodeEnvironment = cloneStringMap(c.Backend.DecodeEnvironment)
		b.AggEnvironment = cloneStringMap(c.Backend.AggEnvironment)
		b.EnableMultipleFrontends = cloneBool(c.Backend.EnableMultipleFrontends)
		b.NumAdditionalFrontends = cloneInt(c.Backend.NumAdditionalFrontends)
		if c.Backend.SGLang != nil {
			sg := SGLangConfig{
				Prefill:    cloneFlags(c.Backend.SGLang.Prefill),
				Decode:     cloneFlags(c.Backend.SGLang.Decode),
				Aggregated: cloneFlags(c.Backend.SGLang.Aggregated),
			}
			b.SGLang = &sg
		}
		out.Backend = &b
	}
	if c.Benchmark != nil {
		bm := *c.Benchmark
		bm.ISL = cloneInt(c.Benchmark.ISL)
		bm.OSL = cloneInt(c.Benchmark.OSL)
		bm.Concurrencies = append([]int(nil), c.Benchmark.Concurrencies...)
		out.Benchmark = &bm
	}
	return &out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFlags(f RoleFlags) RoleFlags {
	if f == nil {
		return nil
	}
	out := make(RoleFlags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
