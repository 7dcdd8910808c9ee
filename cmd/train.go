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
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/features"
	"github.com/tunestats/tunestats/internal/model"
)

var trainModel string
var trainMaxSessions int

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Trains the predictive models",
	Long: `Trains the skip predictor and/or the session-duration forecaster on
the dataset, prints validation metrics, and writes model_metrics.json to
--out-dir. --model selects skip, duration, or all.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runTrain()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainModel, "model", "all", "model to train: skip, duration, or all")
	trainCmd.Flags().IntVar(&trainMaxSessions, "max-sessions", 100000, "cap on sessions used for the skip model")
}

func runTrain() error {
	ds, err := loadData()
	if err != nil {
		return err
	}
	seed := viper.GetUint64("seed")

	allMetrics := make(map[string]map[string]float64)

	if trainModel == "skip" || trainModel == "all" {
		sessions := ds.Sessions
		if trainMaxSessions > 0 && len(sessions) > trainMaxSessions {
			sessions = sessions[:trainMaxSessions]
		}
		matrix := features.BuildSkipMatrix(sessions, ds.Tracks)

		predictor := &model.SkipPredictor{Seed: seed}
		metrics, err := predictor.Train(matrix)
		if err != nil {
			return fmt.Errorf("training skip predictor: %w", err)
		}
		allMetrics["skip_predictor"] = metrics
		printMetrics("Skip predictor", metrics)

		fmt.Println("Top features by weight:")
		for _, fw := range predictor.TopFeatures(5) {
			fmt.Printf("  %-30s %+.4f\n", fw.Name, fw.Weight)
		}
	}

	if trainModel == "duration" || trainModel == "all" {
		matrix := features.BuildDurationMatrix(ds.Sessions)

		forecaster := &model.SessionForecaster{TopK: 3, Seed: seed}
		metrics, err := forecaster.Train(matrix)
		if err != nil {
			return fmt.Errorf("training session forecaster: %w", err)
		}
		allMetrics["session_forecaster"] = metrics
		printMetrics("Session forecaster", metrics)
		fmt.Printf("Selected features: %v\n", forecaster.SelectedFeatures())
	}

	if trainModel != "skip" && trainModel != "duration" && trainModel != "all" {
		return fmt.Errorf("unknown model %q: want skip, duration, or all", trainModel)
	}

	path, err := outPath("model_metrics.json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(allMetrics, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func printMetrics(title string, metrics map[string]float64) {
	fmt.Printf("\n%s:\n", title)
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %.4f\n", k, metrics[k])
	}
}
