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

package cmd

import (
	"github.com/spf13/cobra"

	"srtctl/pkg/submitter"
)

func init() {
	rootCmd.AddCommand(expandCmd)

	expandCmd.Flags().StringArrayVar(&sweepParams, "sweep", nil, "Sweep parameter as name=v1,v2,... (repeatable).")
	expandCmd.Flags().StringVar(&clusterSettingsPath, "cluster-settings", "srtslurm.yaml", "Path to the cluster settings file with defaults and alias registries.")
	expandCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to write artifact directories under.")
}

var expandCmd = &cobra.Command{
	Use:   "expand <config.yaml>",
	Short: "Expands a job config into its execution plans without submitting.",
	Long: `The 'expand' command runs the full resolution pipeline - sweep expansion,
cluster defaults, validation and command generation - and saves every
artifact a submission would produce, but never contacts Slurm. Use it to
inspect exactly what a sweep would submit.`,
	Args:         cobra.ExactArgs(1),
	Run:          runExpandCmd,
	SilenceUsage: true,
}

func runExpandCmd(cmd *cobra.Command, args []string) {
	emitJobs(args[0], submitter.ModePreview, true)
}
