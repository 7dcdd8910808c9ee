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
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/funnel"
)

var funnelKind string

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Analyzes conversion funnels",
	Long: `Computes stage-wise conversion and drop-off. --kind selects the
funnel: 'playlist' for playlist completion, 'activation' for the
signup-to-weekly-active funnel, or 'all' for both.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runFunnel()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(funnelCmd)

	funnelCmd.Flags().StringVar(&funnelKind, "kind", "all", "funnel to analyze: playlist, activation, or all")
}

func runFunnel() error {
	ds, err := loadData()
	if err != nil {
		return err
	}

	analyzer := funnel.NewAnalyzer(funnel.SimulatedProgress{Seed: viper.GetUint64("seed")})

	switch funnelKind {
	case "playlist":
		return printFunnelReport("Playlist completion",
			analyzer.PlaylistCompletion(ds.Sessions, ds.PlaylistTracks))
	case "activation":
		return printFunnelReport("User activation",
			analyzer.UserActivation(ds.Users, ds.Sessions))
	case "all":
		if err := printFunnelReport("Playlist completion",
			analyzer.PlaylistCompletion(ds.Sessions, ds.PlaylistTracks)); err != nil {
			return err
		}
		return printFunnelReport("User activation",
			analyzer.UserActivation(ds.Users, ds.Sessions))
	default:
		return fmt.Errorf("unknown funnel kind %q: want playlist, activation, or all", funnelKind)
	}
}

func printFunnelReport(title string, report *funnel.Report) error {
	fmt.Printf("\n%s funnel:\n", title)

	if len(report.Stages) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Stage", "Users", "Conversion", "Drop-off")
		for _, s := range report.Stages {
			err := table.Append([]string{
				s.Name,
				strconv.Itoa(s.Users),
				fmt.Sprintf("%.1f%%", s.ConversionRate*100),
				fmt.Sprintf("%.1f%%", s.DropOffRate*100),
			})
			if err != nil {
				return fmt.Errorf("rendering funnel: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering funnel: %w", err)
		}

		fmt.Printf("Biggest drop-off: %s\n", funnel.BiggestDropOff(report.Stages))
	}

	keys := make([]string, 0, len(report.Metrics))
	for k := range report.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %.4f\n", k, report.Metrics[k])
	}

	for _, rec := range funnel.Recommendations(report.Stages) {
		fmt.Printf("  - %s\n", rec)
	}
	return nil
}
