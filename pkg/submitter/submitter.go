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

// Package submitter emits execution plans: it writes each plan's artifact
// directory and, in submit mode, hands the batch script to sbatch.
package submitter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"srtctl/pkg/backend"
	"srtctl/pkg/jobconfig"
	"srtctl/pkg/logging"
	"srtctl/pkg/shell"
	"srtctl/pkg/sweep"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Mode selects whether a plan is actually submitted or only materialized.
type Mode string

const (
	ModeSubmit  Mode = "submit"
	ModePreview Mode = "preview"
)

const timestampLayout = "20060102_150405"

// Job is one plan to emit, together with the sweep bindings that produced
// it (nil for a plain, unswept job). Timestamp is the same value the plan's
// batch script was generated with, so the artifact directory and the
// runtime log directory share a name; when empty, Emit stamps the job
// itself.
type Job struct {
	Config    *jobconfig.JobConfig
	Plan      *backend.ExecutionPlan
	Bindings  []sweep.Binding
	Timestamp string
}

// Result records the outcome of emitting one job. Err is set when the
// submission or artifact write failed; a failed job never aborts the rest
// of the batch.
type Result struct {
	Name     string
	Bindings []sweep.Binding
	Path     string
	JobID    string
	Err      error
}

// Submitter writes artifact directories under OutputRoot and submits batch
// scripts through Run. The filesystem and command runner are injectable so
// emission can be exercised without a scheduler.
type Submitter struct {
	Fs         afero.Fs
	OutputRoot string
	Run        func(name string, args ...string) (shell.Result, error)
	Now        func() time.Time
}

// New returns a Submitter operating on the real filesystem.
func New(outputRoot string) *Submitter {
	return &Submitter{
		Fs:         afero.NewOsFs(),
		OutputRoot: outputRoot,
		Run:        shell.ExecuteCommand,
		Now:        time.Now,
	}
}

// Timestamp formats the current time for directory naming. Callers that
// also generate a batch script should call this once and thread the value
// through both, keeping the runtime log directory and the artifact
// directory in step.
func (s *Submitter) Timestamp() string {
	return s.Now().Format(timestampLayout)
}

// Emit materializes one job. In submit mode the script is handed to sbatch
// first and the artifact directory is named after the scheduler's job id;
// in preview mode the directory is named PREVIEW and nothing is submitted.
// Preview names additionally carry the binding label: without a scheduler
// id, the variants of one invocation share worker counts and a
// second-granularity timestamp.
func (s *Submitter) Emit(job Job, mode Mode) Result {
	res := Result{Name: job.Config.Name, Bindings: job.Bindings}
	timestamp := job.Timestamp
	if timestamp == "" {
		timestamp = s.Timestamp()
	}

	jobID := "PREVIEW"
	if mode == ModeSubmit {
		id, err := s.submit(job.Plan.Script)
		if err != nil {
			res.Err = err
			return res
		}
		jobID = id
		res.JobID = id
		logging.Info("Job %s submitted with ID %s", job.Config.Name, id)
	}

	dirName := fmt.Sprintf("%s_%s_%s", jobID, job.Config.Resources.WorkerLabel(), timestamp)
	if mode == ModePreview && len(job.Bindings) > 0 {
		dirName = fmt.Sprintf("%s_%s_%s_%s", jobID, sweep.Label(job.Bindings), job.Config.Resources.WorkerLabel(), timestamp)
	}

	var base string
	if mode == ModeSubmit {
		base = "logs"
	} else {
		base = "dry-runs"
	}
	dir := filepath.Join(s.OutputRoot, base, dirName)

	if err := s.writeArtifacts(dir, job, mode, jobID, timestamp); err != nil {
		res.Err = err
		return res
	}
	res.Path = dir
	logging.Info("Artifacts written to %s", dir)
	return res
}

// submit writes the script to a scratch file, runs sbatch on it and parses
// the job id from the last whitespace-separated field of stdout.
func (s *Submitter) submit(script string) (string, error) {
	f, err := afero.TempFile(s.Fs, "", "sbatch_script_*.sh")
	if err != nil {
		return "", errors.Wrap(err, "failed to create batch script file")
	}
	path := f.Name()
	defer s.Fs.Remove(path)

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return "", errors.Wrap(err, "failed to write batch script")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "failed to write batch script")
	}

	result, err := s.Run("sbatch", path)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", errors.Errorf("sbatch failed with exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	fields := strings.Fields(result.Stdout)
	if len(fields) == 0 {
		return "", errors.New("sbatch produced no output to parse a job id from")
	}
	return fields[len(fields)-1], nil
}

func (s *Submitter) writeArtifacts(dir string, job Job, mode Mode, jobID, timestamp string) error {
	if err := s.Fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create artifact directory %q", dir)
	}

	write := func(name string, data []byte, perm os.FileMode) error {
		path := filepath.Join(dir, name)
		if err := afero.WriteFile(s.Fs, path, data, perm); err != nil {
			return errors.Wrapf(err, "failed to write %s", name)
		}
		return nil
	}

	if err := write("config.yaml", job.Plan.Config, 0o644); err != nil {
		return err
	}
	if job.Plan.BackendConfig != nil {
		if err := write("sglang_config.yaml", job.Plan.BackendConfig, 0o644); err != nil {
			return err
		}
	}
	if err := write("commands.sh", []byte(renderCommands(job)), 0o755); err != nil {
		return err
	}
	if err := write("sbatch_script.sh", []byte(job.Plan.Script), 0o644); err != nil {
		return err
	}

	meta, err := buildMetadata(job, mode, jobID, timestamp)
	if err != nil {
		return err
	}
	return write("metadata.json", meta, 0o644)
}

// renderCommands concatenates the per-role worker commands into a single
// reviewable shell file.
func renderCommands(job Job) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("# Generated worker commands\n")
	for _, role := range job.Config.Resources.Roles() {
		b.WriteString("\n# ============================================================\n")
		b.WriteString(fmt.Sprintf("# %s WORKER COMMAND\n", strings.ToUpper(string(role))))
		b.WriteString("# ============================================================\n\n")
		b.WriteString(job.Plan.Commands[role])
		b.WriteString("\n")
	}
	return b.String()
}

type metadata struct {
	JobName   string            `json:"job_name"`
	Timestamp string            `json:"timestamp"`
	Mode      Mode              `json:"mode"`
	JobID     string            `json:"job_id,omitempty"`
	Bindings  []sweep.Binding   `json:"bindings,omitempty"`
	Resources metadataResources `json:"resources"`
	Benchmark metadataBenchmark `json:"benchmark"`
}

type metadataResources struct {
	GPUType       string `json:"gpu_type"`
	GPUsPerNode   int    `json:"gpus_per_node"`
	TotalNodes    int    `json:"total_nodes"`
	WorkerLabel   string `json:"worker_label"`
	Disaggregated bool   `json:"disaggregated"`
}

type metadataBenchmark struct {
	Type string `json:"type"`
	Arg  string `json:"arg,omitempty"`
}

func buildMetadata(job Job, mode Mode, jobID, timestamp string) ([]byte, error) {
	cfg := job.Config
	meta := metadata{
		JobName:   cfg.Name,
		Timestamp: timestamp,
		Mode:      mode,
		Bindings:  job.Bindings,
		Resources: metadataResources{
			GPUType:       string(cfg.Resources.GPUType),
			GPUsPerNode:   cfg.Resources.GPUsPerNode,
			TotalNodes:    cfg.Resources.TotalNodes(),
			WorkerLabel:   cfg.Resources.WorkerLabel(),
			Disaggregated: cfg.Resources.Disaggregated(),
		},
	}
	if jobID != "PREVIEW" {
		meta.JobID = jobID
	}
	if cfg.Benchmark != nil {
		meta.Benchmark = metadataBenchmark{
			Type: string(cfg.Benchmark.Type),
			Arg:  cfg.Benchmark.Arg(),
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize metadata")
	}
	return data, nil
}

// manifestEntry is one line of the sweep manifest.
type manifestEntry struct {
	Name     string          `json:"name"`
	Bindings []sweep.Binding `json:"bindings,omitempty"`
	Path     string          `json:"path,omitempty"`
	JobID    string          `json:"job_id,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// WriteSweepManifest records the outcome of a whole sweep, one ordered
// entry per expanded variant, failures included.
func (s *Submitter) WriteSweepManifest(results []Result) (string, error) {
	entries := make([]manifestEntry, len(results))
	for i, r := range results {
		entries[i] = manifestEntry{
			Name:     r.Name,
			Bindings: r.Bindings,
			Path:     r.Path,
			JobID:    r.JobID,
		}
		if r.Err != nil {
			entries[i].Error = r.Err.Error()
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize sweep manifest")
	}

	if err := s.Fs.MkdirAll(s.OutputRoot, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create output directory %q", s.OutputRoot)
	}
	path := filepath.Join(s.OutputRoot, "sweep_manifest.json")
	if err := afero.WriteFile(s.Fs, path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write sweep manifest")
	}
	return path, nil
}
