/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/abtest"
	"github.com/tunestats/tunestats/internal/generator"
)

var experimentName string
var experimentMetric string
var experimentEffect float64
var experimentSimulate bool

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Evaluates an A/B test",
	Long: `Assigns users to control and treatment, compares the chosen per-user
metric between groups with Welch's t-test, prints the report, and writes
the result JSON to --out-dir. With --simulate, runs a seeded synthetic
experiment with the given uplift instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runExperiment()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(experimentCmd)

	experimentCmd.Flags().StringVar(&experimentName, "name", "personalized_recommendations", "experiment name")
	experimentCmd.Flags().StringVar(&experimentMetric, "metric", "skip_rate", "per-user metric to compare: skip_rate or listen_time")
	experimentCmd.Flags().Float64Var(&experimentEffect, "effect", 0.05, "relative treatment effect applied to the metric")
	experimentCmd.Flags().BoolVar(&experimentSimulate, "simulate", false, "run a synthetic binomial experiment instead of using the dataset")
}

func runExperiment() error {
	alpha := viper.GetFloat64("significance-level")
	seed := viper.GetUint64("seed")

	var result abtest.Result
	if experimentSimulate {
		result = abtest.Simulate(10000, experimentEffect, seed)
	} else {
		ds, err := loadData()
		if err != nil {
			return err
		}

		gen, err := generator.New(generatorConfigForExperiment(seed))
		if err != nil {
			return err
		}
		assignments, metrics := gen.Experiment(ds.Users, ds.Sessions, experimentName, experimentEffect)

		switch experimentMetric {
		case "skip_rate":
		case "listen_time":
			metrics = make(map[string]float64, len(ds.Users))
			for _, s := range ds.Sessions {
				metrics[s.UserID] += float64(s.ListenDurationMs)
			}
		default:
			return fmt.Errorf("unknown metric %q: want skip_rate or listen_time", experimentMetric)
		}

		framework := abtest.New(alpha)
		framework.LoadAssignments(experimentName, assignments)
		result, err = framework.Analyze(experimentName, metrics)
		if err != nil {
			return err
		}
	}

	fmt.Print(abtest.FormatReport(experimentName, result))

	path, err := outPath("experiment_" + experimentName + ".json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func generatorConfigForExperiment(seed uint64) generator.Config {
	cfg := generator.DefaultConfig()
	cfg.Seed = seed
	return cfg
}
