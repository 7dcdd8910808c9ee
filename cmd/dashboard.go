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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/dashboard"
)

var dashboardDays int

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Exports BI dashboard metrics",
	Long: `Computes DAU/MAU, skip rates by genre/hour/context, and the retention
curve, prints a summary, and writes the CSV exports under
--out-dir/dashboards.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runDashboard()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().IntVar(&dashboardDays, "days", 30, "length of the retention curve in days")
}

func runDashboard() error {
	ds, err := loadData()
	if err != nil {
		return err
	}

	dauMau := dashboard.DAUMAU(ds.Sessions)
	skipRates := dashboard.SkipRates(ds.Sessions, ds.Tracks)
	retention := dashboard.RetentionCurve(ds.Users, ds.Sessions, dashboardDays)

	if err := dashboard.RenderSummary(os.Stdout, dauMau, skipRates); err != nil {
		return err
	}

	dir := filepath.Join(viper.GetString("out-dir"), "dashboards")
	if err := dashboard.Export(dir, dauMau, skipRates, retention); err != nil {
		return err
	}
	fmt.Printf("Wrote dashboard exports to %s\n", dir)
	return nil
}
