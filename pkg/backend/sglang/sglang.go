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

// Package sglang generates the SGLang worker artifacts: the per-role flag
// config, the multi-line launch commands, and the Slurm batch script.
package sglang

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"srtctl/pkg/jobconfig"

	"gopkg.in/yaml.v3"
)

// SlurmScriptTemplate is the Go template for the generated batch script. The
// script exports the job's shape for the worker launcher and allocates the
// full node set up front.
const SlurmScriptTemplate = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --nodes={{.TotalNodes}}
#SBATCH --account={{.Account}}
#SBATCH --partition={{.Partition}}
#SBATCH --time={{.TimeLimit}}
#SBATCH --exclusive

export MODEL_DIR="{{.ModelDir}}"
export CONTAINER_IMAGE="{{.ContainerImage}}"
export GPU_TYPE="{{.GPUType}}"
export GPUS_PER_NODE={{.GPUsPerNode}}
{{- if .NetworkInterface}}
export NETWORK_INTERFACE="{{.NetworkInterface}}"
{{- end}}
{{- if .IsAggregated}}
export AGG_NODES={{.AggNodes}}
export AGG_WORKERS={{.AggWorkers}}
{{- else}}
export PREFILL_NODES={{.PrefillNodes}}
export DECODE_NODES={{.DecodeNodes}}
export PREFILL_WORKERS={{.PrefillWorkers}}
export DECODE_WORKERS={{.DecodeWorkers}}
{{- end}}
export ENABLE_MULTIPLE_FRONTENDS={{.EnableMultipleFrontends}}
export NUM_ADDITIONAL_FRONTENDS={{.NumAdditionalFrontends}}
export USE_INIT_LOCATION={{.UseInitLocation}}
export ENABLE_CONFIG_DUMP={{.EnableConfigDump}}
export DO_BENCHMARK={{.DoBenchmark}}
export BENCHMARK_TYPE="{{.BenchmarkType}}"
{{- if .BenchmarkArg}}
export BENCHMARK_ARG="{{.BenchmarkArg}}"
{{- end}}
export TIMESTAMP="{{.Timestamp}}"
export LOG_DIR="logs/${SLURM_JOB_ID}_{{.WorkerLabel}}_{{.Timestamp}}"

mkdir -p "${LOG_DIR}"
srun --ntasks={{.TotalNodes}} --ntasks-per-node=1 \
  --container-image="${CONTAINER_IMAGE}" \
  --container-mounts="${MODEL_DIR}:/model/" \
  bash launch_workers.sh 2>&1 | tee "${LOG_DIR}/job.log"
`

// Backend generates SGLang execution artifacts.
type Backend struct{}

// New returns an SGLang backend.
func New() *Backend {
	return &Backend{}
}

// GenerateConfigFile serializes the per-role SGLang flag sections as YAML.
// Disaggregated jobs get a document with prefill/decode sections; aggregated
// jobs get the flat aggregated section. Jobs without an sglang_config
// section produce no config file.
func (b *Backend) GenerateConfigFile(cfg *jobconfig.JobConfig) ([]byte, error) {
	if cfg.Backend.SGLang == nil {
		return nil, nil
	}

	var doc any
	if cfg.Resources.Disaggregated() {
		sections := map[string]jobconfig.RoleFlags{}
		for _, role := range []jobconfig.Role{jobconfig.RolePrefill, jobconfig.RoleDecode} {
			if cfg.Backend.SGLang.ForRole(role) != nil {
				sections[string(role)] = roleFlags(cfg, role)
			}
		}
		doc = sections
	} else {
		doc = roleFlags(cfg, jobconfig.RoleAggregated)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sglang config: %w", err)
	}
	return data, nil
}

// RenderCommand renders the full launch command for one worker role:
// environment assignments, the launcher invocation, the role's flags in
// sorted order, and the multi-node coordination flags. The $HOST_IP_MACHINE,
// $PORT and $RANK references are resolved by the job script at run time.
func (b *Backend) RenderCommand(cfg *jobconfig.JobConfig, role jobconfig.Role) (string, error) {
	var lines []string

	env := cfg.Backend.EnvironmentForRole(role)
	for _, key := range sortedKeys(env) {
		lines = append(lines, fmt.Sprintf("%s=%s \\", key, env[key]))
	}

	profiling := cfg.Backend.EnableProfiling
	if profiling {
		lines = append(lines, "python3 -m sglang.launch_server \\")
	} else {
		lines = append(lines, "python3 -m dynamo.sglang \\")
	}

	flags := roleFlags(cfg, role)
	for _, key := range sortedKeys(flags) {
		// The profiling launcher serves a single unified worker and does not
		// accept a disaggregation mode.
		if profiling && key == "disaggregation_mode" {
			continue
		}
		value := flags[key]
		if value == nil {
			continue
		}
		name := strings.ReplaceAll(key, "_", "-")
		switch v := value.(type) {
		case bool:
			if v {
				lines = append(lines, fmt.Sprintf("    --%s \\", name))
			}
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprintf("%v", item)
			}
			lines = append(lines, fmt.Sprintf("    --%s %s \\", name, strings.Join(parts, " ")))
		default:
			lines = append(lines, fmt.Sprintf("    --%s %v \\", name, v))
		}
	}

	gpus := cfg.Resources.GPUsPerNode
	lines = append(lines,
		"    --dist-init-addr $HOST_IP_MACHINE:$PORT \\",
		fmt.Sprintf("    --nnodes %d \\", cfg.Resources.NodesForRole(role)),
		"    --node-rank $RANK \\",
		fmt.Sprintf("    --ep-size %d \\", gpus),
		fmt.Sprintf("    --tp-size %d \\", gpus),
		fmt.Sprintf("    --dp-size %d", gpus),
	)

	return strings.Join(lines, "\n"), nil
}

// GenerateScript renders the Slurm batch script for the job.
func (b *Backend) GenerateScript(cfg *jobconfig.JobConfig, timestamp, networkInterface string) (string, error) {
	tmpl, err := template.New("slurmScript").Parse(SlurmScriptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse slurm script template: %w", err)
	}

	benchmark := cfg.Benchmark
	data := struct {
		JobName                 string
		TotalNodes              int
		Account                 string
		Partition               string
		TimeLimit               string
		ModelDir                string
		ContainerImage          string
		GPUType                 string
		GPUsPerNode             int
		NetworkInterface        string
		IsAggregated            bool
		PrefillNodes            int
		DecodeNodes             int
		PrefillWorkers          int
		DecodeWorkers           int
		AggNodes                int
		AggWorkers              int
		EnableMultipleFrontends bool
		NumAdditionalFrontends  int
		UseInitLocation         bool
		EnableConfigDump        bool
		DoBenchmark             bool
		BenchmarkType           string
		BenchmarkArg            string
		Timestamp               string
		WorkerLabel             string
	}{
		JobName:                 cfg.Name,
		TotalNodes:              cfg.Resources.TotalNodes(),
		Account:                 cfg.Slurm.Account,
		Partition:               cfg.Slurm.Partition,
		TimeLimit:               cfg.Slurm.TimeLimit,
		ModelDir:                cfg.Model.Path,
		ContainerImage:          cfg.Model.Container,
		GPUType:                 cfg.Backend.GPUType,
		GPUsPerNode:             cfg.Resources.GPUsPerNode,
		NetworkInterface:        networkInterface,
		IsAggregated:            !cfg.Resources.Disaggregated(),
		PrefillNodes:            cfg.Resources.NodesForRole(jobconfig.RolePrefill),
		DecodeNodes:             cfg.Resources.NodesForRole(jobconfig.RoleDecode),
		PrefillWorkers:          cfg.Resources.WorkersForRole(jobconfig.RolePrefill),
		DecodeWorkers:           cfg.Resources.WorkersForRole(jobconfig.RoleDecode),
		AggNodes:                cfg.Resources.NodesForRole(jobconfig.RoleAggregated),
		AggWorkers:              cfg.Resources.WorkersForRole(jobconfig.RoleAggregated),
		EnableMultipleFrontends: cfg.Backend.EnableMultipleFrontends != nil && *cfg.Backend.EnableMultipleFrontends,
		NumAdditionalFrontends:  intValue(cfg.Backend.NumAdditionalFrontends),
		UseInitLocation:         cfg.UseInitLocation,
		EnableConfigDump:        cfg.EnableConfigDump != nil && *cfg.EnableConfigDump,
		DoBenchmark:             benchmark != nil && benchmark.Enabled(),
		BenchmarkType:           benchmarkType(benchmark),
		BenchmarkArg:            benchmarkArg(benchmark),
		Timestamp:               timestamp,
		WorkerLabel:             cfg.Resources.WorkerLabel(),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute slurm script template: %w", err)
	}
	return buf.String(), nil
}

// roleFlags returns the role's declared flag section with the common worker
// defaults filled in. The returned map is a copy; the configuration is never
// mutated.
func roleFlags(cfg *jobconfig.JobConfig, role jobconfig.Role) jobconfig.RoleFlags {
	flags := jobconfig.RoleFlags{}
	for key, value := range cfg.Backend.SGLang.ForRole(role) {
		flags[key] = value
	}
	if _, ok := flags["model_path"]; !ok {
		flags["model_path"] = "/model/"
	}
	if _, ok := flags["trust_remote_code"]; !ok {
		flags["trust_remote_code"] = true
	}
	if role != jobconfig.RoleAggregated {
		if _, ok := flags["disaggregation_mode"]; !ok {
			flags["disaggregation_mode"] = string(role)
		}
	}
	return flags
}

func benchmarkType(b *jobconfig.BenchmarkConfig) string {
	if b == nil {
		return string(jobconfig.BenchmarkManual)
	}
	return string(b.Type)
}

func benchmarkArg(b *jobconfig.BenchmarkConfig) string {
	if b == nil {
		return ""
	}
	return b.Arg()
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
