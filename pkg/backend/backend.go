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

// Package backend turns a resolved job configuration into the concrete
// artifacts a scheduler submission needs: the backend config file, the
// per-role worker commands, and the batch script.
package backend

import (
	"fmt"

	"srtctl/pkg/backend/sglang"
	"srtctl/pkg/jobconfig"
)

// Backend generates execution artifacts for one inference framework.
// Implementations extract the framework-specific sections of the job
// configuration; everything they return is plain text or serialized YAML,
// never paths into the implementation's own filesystem.
type Backend interface {
	// GenerateConfigFile serializes the framework's worker configuration,
	// or returns nil when the job carries none.
	GenerateConfigFile(cfg *jobconfig.JobConfig) ([]byte, error)

	// RenderCommand renders the full multi-line worker command for one role,
	// environment assignments included.
	RenderCommand(cfg *jobconfig.JobConfig, role jobconfig.Role) (string, error)

	// GenerateScript renders the batch script that launches all workers.
	// networkInterface may be empty when the cluster settings omit it.
	GenerateScript(cfg *jobconfig.JobConfig, timestamp, networkInterface string) (string, error)
}

// New selects the backend implementation named by the configuration's
// backend.type tag. Unknown types are an error, there is no fallback.
func New(cfg *jobconfig.JobConfig) (Backend, error) {
	switch cfg.Backend.Type {
	case "sglang":
		return sglang.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type %q", cfg.Backend.Type)
	}
}

// ExecutionPlan is the complete set of artifacts for one job, built once
// and treated as read-only afterwards.
type ExecutionPlan struct {
	// Config is the resolved job document, defaults applied.
	Config []byte
	// BackendConfig is the framework worker configuration, nil when the job
	// carries none.
	BackendConfig []byte
	// Commands holds the rendered worker command per role.
	Commands map[jobconfig.Role]string
	// Environments holds the environment assignments per role, as declared.
	Environments map[jobconfig.Role]map[string]string
	// Script is the rendered batch script.
	Script string
}

// BuildPlan assembles the execution plan for a resolved configuration.
func BuildPlan(cfg *jobconfig.JobConfig, timestamp, networkInterface string) (*ExecutionPlan, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}

	resolved, err := cfg.ToYAML()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resolved config: %w", err)
	}

	backendConfig, err := b.GenerateConfigFile(cfg)
	if err != nil {
		return nil, err
	}

	commands := map[jobconfig.Role]string{}
	environments := map[jobconfig.Role]map[string]string{}
	for _, role := range cfg.Resources.Roles() {
		cmd, err := b.RenderCommand(cfg, role)
		if err != nil {
			return nil, err
		}
		commands[role] = cmd
		environments[role] = cfg.Backend.EnvironmentForRole(role)
	}

	script, err := b.GenerateScript(cfg, timestamp, networkInterface)
	if err != nil {
		return nil, err
	}

	return &ExecutionPlan{
		Config:        resolved,
		BackendConfig: backendConfig,
		Commands:      commands,
		Environments:  environments,
		Script:        script,
	}, nil
}
