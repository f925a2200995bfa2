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
	"fmt"
	"os"

	"srtctl/pkg/backend"
	"srtctl/pkg/cluster"
	"srtctl/pkg/document"
	"srtctl/pkg/jobconfig"
	"srtctl/pkg/logging"
	"srtctl/pkg/submitter"
	"srtctl/pkg/sweep"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zclconf/go-cty/cty"
)

var (
	sweepParams         []string
	dryRun              bool
	clusterSettingsPath string
	outputDir           string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringArrayVar(&sweepParams, "sweep", nil, "Sweep parameter as name=v1,v2,... (repeatable). Each {name} placeholder in the config takes every listed value.")
	submitCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate all artifacts without submitting to Slurm.")
	submitCmd.Flags().StringVar(&clusterSettingsPath, "cluster-settings", "srtslurm.yaml", "Path to the cluster settings file with defaults and alias registries.")
	submitCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to write artifact directories under.")
}

var submitCmd = &cobra.Command{
	Use:   "submit <config.yaml>",
	Short: "Resolves a job config and submits it to Slurm.",
	Long: `The 'submit' command loads a YAML job config, applies cluster defaults and
alias resolution, validates it, and submits the resulting job to Slurm via
sbatch. With --sweep, every combination of the supplied values is expanded
into its own job. With --dry-run, all artifacts are generated and saved but
nothing is submitted.`,
	Args:         cobra.ExactArgs(1),
	Run:          runSubmitCmd,
	SilenceUsage: true,
}

func runSubmitCmd(cmd *cobra.Command, args []string) {
	mode := submitter.ModeSubmit
	if dryRun {
		mode = submitter.ModePreview
	}
	emitJobs(args[0], mode, false)
}

// emitJobs is the shared pipeline behind submit and expand: load, expand,
// resolve, plan, emit. A variant that fails to resolve or plan is reported
// and the remaining variants still proceed.
func emitJobs(configPath string, mode submitter.Mode, printBindings bool) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		logging.Fatal("Failed to read config: %v", err)
	}

	doc, err := document.FromYAML(data)
	if err != nil {
		logging.Fatal("Failed to parse config: %v", err)
	}

	spec, err := sweep.ParseSpec(sweepParams)
	if err != nil {
		logging.Fatal("Invalid sweep parameters: %v", err)
	}
	if len(spec) > 0 {
		logging.Info("Sweep spans %d combination(s)", spec.Cardinality())
	}

	variants, err := sweep.Expand(doc, spec)
	if err != nil {
		logging.Fatal("Sweep expansion failed: %v", err)
	}
	swept := len(variants) > 1 || len(variants[0].Bindings) > 0
	if swept {
		logging.Info("Expanded %d job(s) from sweep", len(variants))
	}

	settings, err := cluster.Load(clusterSettingsPath)
	if err != nil {
		logging.Fatal("Failed to load cluster settings: %v", err)
	}
	resolver := jobconfig.Resolver{Settings: settings}

	sub := submitter.New(outputDir)
	results := make([]submitter.Result, 0, len(variants))

	for i, variant := range variants {
		if printBindings && len(variant.Bindings) > 0 {
			logging.Info("[%d/%d] %s", i+1, len(variants), variant.Label())
		} else if swept {
			logging.Info("[%d/%d] Processing variant %s", i+1, len(variants), variant.Label())
		}

		job, err := buildJob(variant, resolver)
		if err != nil {
			logging.Error("Variant %s failed: %v", variant.Label(), err)
			results = append(results, submitter.Result{Name: variantName(variant), Bindings: variant.Bindings, Err: err})
			continue
		}

		// One timestamp per variant: the script's log directory and the
		// artifact directory must carry the same stamp.
		job.Timestamp = sub.Timestamp()
		job.Plan, err = backend.BuildPlan(job.Config, job.Timestamp, settings.NetworkInterface)
		if err != nil {
			logging.Error("Variant %s failed: %v", variant.Label(), err)
			results = append(results, submitter.Result{Name: job.Config.Name, Bindings: variant.Bindings, Err: err})
			continue
		}

		res := sub.Emit(job, mode)
		if res.Err != nil {
			logging.Error("Failed to emit %s: %v", res.Name, res.Err)
		}
		results = append(results, res)
	}

	if swept {
		manifestPath, err := sub.WriteSweepManifest(results)
		if err != nil {
			logging.Fatal("Failed to write sweep manifest: %v", err)
		}
		logging.Info("Sweep manifest written to %s", manifestPath)
	}

	printSummary(results, mode)
}

// buildJob turns one expanded variant into a resolved submitter job.
func buildJob(variant sweep.Variant, resolver jobconfig.Resolver) (submitter.Job, error) {
	raw, err := document.ToYAML(variant.Doc)
	if err != nil {
		return submitter.Job{}, err
	}
	cfg, err := jobconfig.Parse(raw)
	if err != nil {
		return submitter.Job{}, err
	}
	resolved, err := resolver.Resolve(cfg)
	if err != nil {
		return submitter.Job{}, err
	}
	return submitter.Job{Config: resolved, Bindings: variant.Bindings}, nil
}

// variantName recovers a display name for a variant that failed before
// resolution, preferring the document's own name field over the binding
// label so manifest entries stay identifiable.
func variantName(variant sweep.Variant) string {
	doc := variant.Doc
	if doc.Type().IsObjectType() && doc.Type().HasAttribute("name") {
		if n := doc.GetAttr("name"); !n.IsNull() && n.Type() == cty.String {
			return n.AsString()
		}
	}
	return variant.Label()
}

func printSummary(results []submitter.Result, mode submitter.Mode) {
	emitted := 0
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			emitted++
		}
	}

	fmt.Println()
	verb := "submitted"
	if mode == submitter.ModePreview {
		verb = "generated"
	}
	color.Green("%d job(s) %s", emitted, verb)
	for _, r := range results {
		if r.Err == nil && r.JobID != "" {
			fmt.Printf("  %s  job %s  %s\n", r.Name, r.JobID, r.Path)
		} else if r.Err == nil {
			fmt.Printf("  %s  %s\n", r.Name, r.Path)
		}
	}
	if failed > 0 {
		color.Red("%d job(s) failed", failed)
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("  %s: %v\n", r.Name, r.Err)
			}
		}
		os.Exit(1)
	}
}
