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

// Package cluster loads the cluster-level settings document (srtslurm.yaml)
// holding scheduler defaults and the model/container alias registry.
//
// Settings are loaded once per invocation and passed explicitly into every
// resolution call; nothing in this package is reached through global state.
package cluster

import (
	"fmt"
	"os"

	"srtctl/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Settings holds cluster-wide defaults and alias mappings. The zero value is
// a valid, empty settings object: no defaults, no aliases.
type Settings struct {
	DefaultAccount   string `yaml:"default_account"`
	DefaultPartition string `yaml:"default_partition"`
	DefaultTimeLimit string `yaml:"default_time_limit"`
	DefaultContainer string `yaml:"default_container"`

	GPUsPerNode      int    `yaml:"gpus_per_node"`
	NetworkInterface string `yaml:"network_interface"`

	// ModelPaths and Containers map short names to full resource paths.
	ModelPaths map[string]string `yaml:"model_paths"`
	Containers map[string]string `yaml:"containers"`
}

// Load reads the settings document at path. A missing file is not an error:
// jobs whose documents are self-sufficient run without cluster settings, and
// any field they do rely on surfaces later as a validation error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug("No cluster settings at %s - using job documents as-is", path)
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read cluster settings %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse cluster settings %s: %w", path, err)
	}
	logging.Debug("Loaded cluster settings from %s", path)
	return &s, nil
}

// ResolveModel maps a model alias to its registered path. Names not in the
// registry pass through unchanged; full paths resolve to themselves.
func (s *Settings) ResolveModel(raw string) string {
	if path, ok := s.ModelPaths[raw]; ok {
		logging.Debug("Resolved model alias %q -> %q", raw, path)
		return path
	}
	return raw
}

// ResolveContainer maps a container alias to its registered image path, with
// the same pass-through behavior as ResolveModel.
func (s *Settings) ResolveContainer(raw string) string {
	if path, ok := s.Containers[raw]; ok {
		logging.Debug("Resolved container alias %q -> %q", raw, path)
		return path
	}
	return raw
}
