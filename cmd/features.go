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

	"github.com/spf13/cobra"

	"github.com/tunestats/tunestats/internal/features"
)

var featuresCmd = &cobra.Command{
	Use:   "features [from] [to (optional)]",
	Short: "Builds per-user behavioral features",
	Long: `Computes the full per-user feature set (engagement, genre diversity,
temporal patterns, audio preferences, demographics) and writes it to
user_features.csv in --out-dir. Optional date arguments restrict the
sessions considered; date strings look like 'yyyy', 'yyyy-mm', or
'yyyy-mm-dd'.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		err := runFeatures(args)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(args []string) error {
	start, end, err := parseDateRangeFromArgs(args)
	if err != nil {
		return err
	}

	ds, err := loadData()
	if err != nil {
		return err
	}
	sessions := filterSessions(ds.Sessions, start, end)

	built := features.Build(sessions, ds.Users, ds.Tracks)

	path, err := outPath("user_features.csv")
	if err != nil {
		return err
	}
	if err := features.SaveCSV(path, built); err != nil {
		return fmt.Errorf("writing features: %w", err)
	}
	fmt.Printf("Wrote features for %d users to %s\n", len(built), path)
	return nil
}
