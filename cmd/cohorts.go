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
	"math"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/cohort"
	"github.com/tunestats/tunestats/internal/dataset"
)

var cohortHorizon int

var cohortsCmd = &cobra.Command{
	Use:   "cohorts",
	Short: "Analyzes retention by signup cohort",
	Long: `Builds the cohort retention matrix at the --cohort-period granularity,
prints it with a summary and per-cohort engagement, flags churn-risk users,
and writes retention_matrix.csv and cohort_engagement.csv to --out-dir.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runCohorts()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(cohortsCmd)

	cohortsCmd.Flags().IntVar(&cohortHorizon, "horizon", 12, "number of periods to track per cohort")
}

func runCohorts() error {
	period, err := cohort.ParsePeriod(viper.GetString("cohort-period"))
	if err != nil {
		return err
	}

	ds, err := loadData()
	if err != nil {
		return err
	}

	analyzer := cohort.NewAnalyzer(period)
	matrix, err := analyzer.Retention(ds.Users, ds.Sessions, cohortHorizon)
	if err != nil {
		return err
	}

	if err := printRetentionMatrix(matrix); err != nil {
		return err
	}

	summary, err := cohort.Summarize(matrix)
	if err != nil {
		return err
	}
	fmt.Printf("\nCohorts: %d\n", summary.NumCohorts)
	fmt.Printf("Avg period-1 retention: %.1f%%\n", summary.AvgPeriod1Retention)
	fmt.Printf("Avg period-3 retention: %.1f%%\n", summary.AvgPeriod3Retention)
	fmt.Printf("Avg period-6 retention: %.1f%%\n", summary.AvgPeriod6Retention)
	fmt.Printf("Best cohort: %s, worst cohort: %s\n", summary.BestCohort, summary.WorstCohort)

	engagement := analyzer.Engagement(ds.Users, ds.Sessions)
	risks := cohort.IdentifyChurnRisk(ds.Users, ds.Sessions, viper.GetInt("churn-days"))
	atRisk := 0
	for _, r := range risks {
		if r.AtRisk {
			atRisk++
		}
	}
	fmt.Printf("Churn risk: %d of %d users inactive %d+ days\n",
		atRisk, len(risks), viper.GetInt("churn-days"))

	if err := exportRetentionMatrix(matrix); err != nil {
		return err
	}
	return exportEngagement(engagement)
}

func printRetentionMatrix(m *cohort.RetentionMatrix) error {
	header := []string{"Cohort", "Size"}
	for i := 0; i < m.Horizon; i++ {
		header = append(header, fmt.Sprintf("P%d", i))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header(header)
	for i, name := range m.Cohorts {
		row := []string{name, strconv.Itoa(m.CohortSizes[i])}
		for _, v := range m.Values[i] {
			row = append(row, formatCell(v))
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("rendering retention matrix: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering retention matrix: %w", err)
	}
	return nil
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

func exportRetentionMatrix(m *cohort.RetentionMatrix) error {
	path, err := outPath("retention_matrix.csv")
	if err != nil {
		return err
	}

	header := []string{"cohort", "cohort_size"}
	for i := 0; i < m.Horizon; i++ {
		header = append(header, fmt.Sprintf("period_%d", i))
	}
	rows := [][]string{header}
	for i, name := range m.Cohorts {
		row := []string{name, strconv.Itoa(m.CohortSizes[i])}
		for _, v := range m.Values[i] {
			if math.IsNaN(v) {
				row = append(row, "")
			} else {
				row = append(row, strconv.FormatFloat(v, 'f', 4, 64))
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

func exportEngagement(engagement []cohort.CohortEngagement) error {
	path, err := outPath("cohort_engagement.csv")
	if err != nil {
		return err
	}

	rows := [][]string{{
		"cohort", "unique_users", "total_sessions", "avg_listen_duration_ms",
		"skip_rate", "sessions_per_user", "listen_hours_per_user",
	}}
	for _, e := range engagement {
		rows = append(rows, []string{
			e.Cohort,
			strconv.Itoa(e.UniqueUsers),
			strconv.Itoa(e.TotalSessions),
			strconv.FormatFloat(e.AvgListenDurationMs, 'f', 2, 64),
			strconv.FormatFloat(e.SkipRate, 'f', 4, 64),
			strconv.FormatFloat(e.SessionsPerUser, 'f', 2, 64),
			strconv.FormatFloat(e.ListenHoursPerUser, 'f', 2, 64),
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := dataset.WriteRows(f, rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
