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

package cluster

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	doc := `
default_account: hw-nvidia
default_partition: batch
default_time_limit: "04:00:00"
gpus_per_node: 8
network_interface: enP6p9s0np0
model_paths:
  deepseek-r1: /lustre/models/deepseek-r1
containers:
  sglang-latest: /lustre/containers/sglang-latest.sqsh
`
	path := filepath.Join(t.TempDir(), "srtslurm.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.DefaultAccount != "hw-nvidia" {
		t.Errorf("Expected default_account %q, got %q", "hw-nvidia", s.DefaultAccount)
	}
	if s.GPUsPerNode != 8 {
		t.Errorf("Expected gpus_per_node 8, got %d", s.GPUsPerNode)
	}
	if s.NetworkInterface != "enP6p9s0np0" {
		t.Errorf("Expected network_interface %q, got %q", "enP6p9s0np0", s.NetworkInterface)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should not error, got: %v", err)
	}
	if s == nil {
		t.Fatal("Expected empty settings, got nil")
	}
	if got := s.ResolveModel("deepseek-r1"); got != "deepseek-r1" {
		t.Errorf("Empty settings should pass names through, got %q", got)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srtslurm.yaml")
	if err := os.WriteFile(path, []byte("default_account: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected parse error for malformed settings, got nil")
	}
}

func TestResolveAliases(t *testing.T) {
	s := &Settings{
		ModelPaths: map[string]string{"deepseek-r1": "/lustre/models/deepseek-r1"},
		Containers: map[string]string{"sglang-latest": "/lustre/containers/sglang-latest.sqsh"},
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"model alias", s.ResolveModel("deepseek-r1"), "/lustre/models/deepseek-r1"},
		{"model passthrough", s.ResolveModel("/scratch/other"), "/scratch/other"},
		{"container alias", s.ResolveContainer("sglang-latest"), "/lustre/containers/sglang-latest.sqsh"},
		{"container passthrough", s.ResolveContainer("unknown.sqsh"), "unknown.sqsh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}
