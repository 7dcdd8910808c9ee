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
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/abtest"
	"github.com/tunestats/tunestats/internal/cohort"
	"github.com/tunestats/tunestats/internal/dashboard"
	"github.com/tunestats/tunestats/internal/features"
	"github.com/tunestats/tunestats/internal/funnel"
	"github.com/tunestats/tunestats/internal/generator"
	"github.com/tunestats/tunestats/internal/model"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Runs the full analysis pipeline",
	Long: `Runs every analysis stage in order: feature engineering, cohort
retention, funnels, experiment evaluation, model training, and dashboard
export. Writes all artifacts plus pipeline_results.json to --out-dir.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runPipeline()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}

// pipelineResults is the machine-readable artifact of one pipeline run.
type pipelineResults struct {
	StartedAt      time.Time                     `json:"started_at"`
	DurationSecs   float64                       `json:"duration_secs"`
	Users          int                           `json:"users"`
	Sessions       int                           `json:"sessions"`
	Features       int                           `json:"features"`
	Retention      *cohort.RetentionSummary      `json:"retention"`
	PlaylistFunnel map[string]float64            `json:"playlist_funnel"`
	Activation     map[string]float64            `json:"activation_funnel"`
	Experiment     abtest.Result                 `json:"experiment"`
	ModelMetrics   map[string]map[string]float64 `json:"model_metrics"`
}

func runPipeline() error {
	started := time.Now()
	seed := viper.GetUint64("seed")

	ds, err := loadData()
	if err != nil {
		return err
	}
	results := &pipelineResults{
		StartedAt: started,
		Users:     len(ds.Users),
		Sessions:  len(ds.Sessions),
	}

	// Features
	log.Info("pipeline: feature engineering")
	built := features.Build(ds.Sessions, ds.Users, ds.Tracks)
	results.Features = len(built)
	path, err := outPath("user_features.csv")
	if err != nil {
		return err
	}
	if err := features.SaveCSV(path, built); err != nil {
		return fmt.Errorf("writing features: %w", err)
	}

	// Cohorts
	log.Info("pipeline: cohort retention")
	period, err := cohort.ParsePeriod(viper.GetString("cohort-period"))
	if err != nil {
		return err
	}
	analyzer := cohort.NewAnalyzer(period)
	matrix, err := analyzer.Retention(ds.Users, ds.Sessions, 12)
	if err != nil {
		return err
	}
	results.Retention, err = cohort.Summarize(matrix)
	if err != nil {
		return err
	}
	if err := exportRetentionMatrix(matrix); err != nil {
		return err
	}

	// Funnels
	log.Info("pipeline: funnels")
	funnelAnalyzer := funnel.NewAnalyzer(funnel.SimulatedProgress{Seed: seed})
	results.PlaylistFunnel = funnelAnalyzer.PlaylistCompletion(ds.Sessions, ds.PlaylistTracks).Metrics
	results.Activation = funnelAnalyzer.UserActivation(ds.Users, ds.Sessions).Metrics

	// Experiment
	log.Info("pipeline: experiment evaluation")
	gen, err := generator.New(generatorConfigForExperiment(seed))
	if err != nil {
		return err
	}
	assignments, metrics := gen.Experiment(ds.Users, ds.Sessions, "personalized_recommendations", 0.05)
	framework := abtest.New(viper.GetFloat64("significance-level"))
	framework.LoadAssignments("personalized_recommendations", assignments)
	results.Experiment, err = framework.Analyze("personalized_recommendations", metrics)
	if err != nil {
		return err
	}

	// Models
	log.Info("pipeline: model training")
	results.ModelMetrics = make(map[string]map[string]float64)

	sessions := ds.Sessions
	if len(sessions) > 100000 {
		sessions = sessions[:100000]
	}
	predictor := &model.SkipPredictor{Seed: seed}
	skipMetrics, err := predictor.Train(features.BuildSkipMatrix(sessions, ds.Tracks))
	if err != nil {
		return fmt.Errorf("training skip predictor: %w", err)
	}
	results.ModelMetrics["skip_predictor"] = skipMetrics

	forecaster := &model.SessionForecaster{TopK: 3, Seed: seed}
	durationMetrics, err := forecaster.Train(features.BuildDurationMatrix(ds.Sessions))
	if err != nil {
		return fmt.Errorf("training session forecaster: %w", err)
	}
	results.ModelMetrics["session_forecaster"] = durationMetrics

	// Dashboard
	log.Info("pipeline: dashboard export")
	dir := filepath.Join(viper.GetString("out-dir"), "dashboards")
	err = dashboard.Export(dir,
		dashboard.DAUMAU(ds.Sessions),
		dashboard.SkipRates(ds.Sessions, ds.Tracks),
		dashboard.RetentionCurve(ds.Users, ds.Sessions, 30))
	if err != nil {
		return err
	}

	results.DurationSecs = time.Since(started).Seconds()

	resultsPath, err := outPath("pipeline_results.json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pipeline results: %w", err)
	}
	if err := os.WriteFile(resultsPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", resultsPath, err)
	}

	fmt.Printf("Pipeline complete in %.1fs, results in %s\n", results.DurationSecs, resultsPath)
	return nil
}
