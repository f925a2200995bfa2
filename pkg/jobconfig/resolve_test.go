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
	"strings"
	"testing"

	"srtctl/pkg/cluster"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) {
	TestingT(t)
}

type ResolveSuite struct{}

var _ = Suite(&ResolveSuite{})

func intPtr(i int) *int { return &i }

func validDisagg() *JobConfig {
	return &JobConfig{
		Name: "deepseek-disagg",
		Model: ModelConfig{
			Path:      "/models/deepseek-r1",
			Container: "/containers/sglang.sqsh",
			Precision: PrecisionFP8,
		},
		Resources: ResourceConfig{
			GPUType:        GPUTypeGB200,
			PrefillNodes:   intPtr(1),
			DecodeNodes:    intPtr(2),
			PrefillWorkers: intPtr(1),
			DecodeWorkers:  intPtr(2),
		},
		Slurm: SlurmConfig{Account: "hw-nvidia", Partition: "batch"},
	}
}

func validAgg() *JobConfig {
	cfg := validDisagg()
	cfg.Resources = ResourceConfig{
		GPUType:    GPUTypeH100,
		AggNodes:   intPtr(3),
		AggWorkers: intPtr(3),
	}
	return cfg
}

func (s *ResolveSuite) TestDefaultsApplied(c *C) {
	r := Resolver{}
	cfg, err := r.Resolve(validDisagg())
	c.Assert(err, IsNil)

	c.Check(cfg.Resources.GPUsPerNode, Equals, 4)
	c.Check(cfg.Slurm.TimeLimit, Equals, "04:00:00")
	c.Assert(cfg.Backend, NotNil)
	c.Check(cfg.Backend.Type, Equals, "sglang")
	c.Check(cfg.Backend.GPUType, Equals, "gb200-fp8")
	c.Assert(cfg.Backend.EnableMultipleFrontends, NotNil)
	c.Check(*cfg.Backend.EnableMultipleFrontends, Equals, true)
	c.Assert(cfg.Backend.NumAdditionalFrontends, NotNil)
	c.Check(*cfg.Backend.NumAdditionalFrontends, Equals, 9)
	c.Assert(cfg.Benchmark, NotNil)
	c.Check(cfg.Benchmark.Type, Equals, BenchmarkManual)
	c.Assert(cfg.EnableConfigDump, NotNil)
	c.Check(*cfg.EnableConfigDump, Equals, true)
}

func (s *ResolveSuite) TestClusterDefaultsAndAliases(c *C) {
	r := Resolver{Settings: &cluster.Settings{
		DefaultAccount:   "hw-nvidia",
		DefaultPartition: "batch",
		DefaultTimeLimit: "02:00:00",
		DefaultContainer: "sglang-latest",
		GPUsPerNode:      8,
		ModelPaths:       map[string]string{"deepseek-r1": "/lustre/models/deepseek-r1"},
		Containers:       map[string]string{"sglang-latest": "/lustre/containers/sglang-latest.sqsh"},
	}}

	raw := validDisagg()
	raw.Model.Path = "deepseek-r1"
	raw.Model.Container = ""
	raw.Slurm = SlurmConfig{}

	cfg, err := r.Resolve(raw)
	c.Assert(err, IsNil)
	c.Check(cfg.Model.Path, Equals, "/lustre/models/deepseek-r1")
	c.Check(cfg.Model.Container, Equals, "/lustre/containers/sglang-latest.sqsh")
	c.Check(cfg.Slurm.Account, Equals, "hw-nvidia")
	c.Check(cfg.Slurm.Partition, Equals, "batch")
	c.Check(cfg.Slurm.TimeLimit, Equals, "02:00:00")
	c.Check(cfg.Resources.GPUsPerNode, Equals, 8)
}

func (s *ResolveSuite) TestExplicitValuesWinOverClusterDefaults(c *C) {
	r := Resolver{Settings: &cluster.Settings{
		DefaultAccount:   "other-account",
		DefaultTimeLimit: "02:00:00",
		GPUsPerNode:      8,
	}}

	raw := validDisagg()
	raw.Slurm.TimeLimit = "08:00:00"
	raw.Resources.GPUsPerNode = 4

	cfg, err := r.Resolve(raw)
	c.Assert(err, IsNil)
	c.Check(cfg.Slurm.Account, Equals, "hw-nvidia")
	c.Check(cfg.Slurm.TimeLimit, Equals, "08:00:00")
	c.Check(cfg.Resources.GPUsPerNode, Equals, 4)
}

func (s *ResolveSuite) TestUnknownModelAliasPassesThrough(c *C) {
	r := Resolver{Settings: &cluster.Settings{
		ModelPaths: map[string]string{"deepseek-r1": "/lustre/models/deepseek-r1"},
	}}

	raw := validDisagg()
	raw.Model.Path = "/scratch/my-model"

	cfg, err := r.Resolve(raw)
	c.Assert(err, IsNil)
	c.Check(cfg.Model.Path, Equals, "/scratch/my-model")
}

func (s *ResolveSuite) TestInputNotMutated(c *C) {
	raw := validDisagg()
	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, IsNil)

	c.Check(raw.Backend, IsNil)
	c.Check(raw.Benchmark, IsNil)
	c.Check(raw.EnableConfigDump, IsNil)
	c.Check(raw.Resources.GPUsPerNode, Equals, 0)
	c.Check(raw.Slurm.TimeLimit, Equals, "")
}

func (s *ResolveSuite) TestTopologyMutualExclusion(c *C) {
	raw := validDisagg()
	raw.Resources.AggNodes = intPtr(2)

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	c.Check(err, ErrorMatches, `(?s).*cannot mix disaggregated.*`)
}

func (s *ResolveSuite) TestTopologyRequired(c *C) {
	raw := validDisagg()
	raw.Resources = ResourceConfig{GPUType: GPUTypeGB200}

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	c.Check(err, ErrorMatches, `(?s).*must specify either disaggregated.*`)
}

func (s *ResolveSuite) TestEnumSuggestion(c *C) {
	raw := validDisagg()
	raw.Resources.GPUType = "gb100"

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	c.Check(err, ErrorMatches, `(?s).*resources.gpu_type.*did you mean "gb200".*`)
}

func (s *ResolveSuite) TestCollectsAllErrors(c *C) {
	raw := &JobConfig{
		Model:     ModelConfig{Precision: "fp9"},
		Resources: ResourceConfig{GPUType: "h100"},
	}

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	verr, ok := err.(*ValidationError)
	c.Assert(ok, Equals, true)

	paths := make(map[string]bool)
	for _, fe := range verr.Errors {
		paths[fe.Path] = true
	}
	c.Check(paths["name"], Equals, true)
	c.Check(paths["model.path"], Equals, true)
	c.Check(paths["model.precision"], Equals, true)
	c.Check(paths["resources"], Equals, true)
	c.Check(paths["slurm.account"], Equals, true)
}

func (s *ResolveSuite) TestTimeLimitFormat(c *C) {
	raw := validDisagg()
	raw.Slurm.TimeLimit = "4h"

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	c.Check(strings.Contains(err.Error(), "slurm.time_limit"), Equals, true)
}

func (s *ResolveSuite) TestSABenchRequirements(c *C) {
	raw := validAgg()
	raw.Benchmark = &BenchmarkConfig{Type: BenchmarkSABench}

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	verr := err.(*ValidationError)
	c.Check(verr.Errors, HasLen, 3)

	raw = validAgg()
	raw.Benchmark = &BenchmarkConfig{
		Type:          BenchmarkSABench,
		ISL:           intPtr(1024),
		OSL:           intPtr(1024),
		Concurrencies: []int{8, 16, 32},
	}
	cfg, err := r.Resolve(raw)
	c.Assert(err, IsNil)
	c.Check(cfg.Benchmark.ReqRate, Equals, "inf")
	c.Check(cfg.Benchmark.Arg(), Equals, "1024 1024 8x16x32 inf")
}

func (s *ResolveSuite) TestProfilingConstraints(c *C) {
	raw := validDisagg()
	raw.Backend = &BackendConfig{EnableProfiling: true}

	r := Resolver{}
	_, err := r.Resolve(raw)
	c.Assert(err, NotNil)
	c.Check(err, ErrorMatches, `(?s).*profiling supports at most one decode worker.*`)

	raw = validAgg()
	raw.Resources.AggWorkers = intPtr(1)
	raw.Resources.AggNodes = intPtr(1)
	raw.Backend = &BackendConfig{EnableProfiling: true}
	raw.Benchmark = &BenchmarkConfig{
		Type:          BenchmarkSABench,
		ISL:           intPtr(1024),
		OSL:           intPtr(1024),
		Concurrencies: []int{8},
	}
	_, err = r.Resolve(raw)
	c.Assert(err, NotNil)
	c.Check(err, ErrorMatches, `(?s).*profiling requires benchmark type "manual".*`)
}

func (s *ResolveSuite) TestArithmeticHookRuns(c *C) {
	called := false
	r := Resolver{ArithmeticHook: func(cfg *JobConfig) error {
		called = true
		return nil
	}}
	_, err := r.Resolve(validDisagg())
	c.Assert(err, IsNil)
	c.Check(called, Equals, true)
}
