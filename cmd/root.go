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

// Package cmd defines the srtctl command line interface.
package cmd

import (
	"os"

	"srtctl/pkg/logging"

	"github.com/spf13/cobra"
)

var debugLogging bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging.")
}

var rootCmd = &cobra.Command{
	Use:   "srtctl",
	Short: "srtctl submits model-serving jobs to Slurm from YAML configs.",
	Long: `srtctl resolves declarative YAML job configs into per-role execution
plans for distributed model serving and submits them to Slurm. Configs may
carry {name} sweep placeholders; srtctl expands them into the cartesian
product of the supplied values and emits one job per combination.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetDebug(debugLogging)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
