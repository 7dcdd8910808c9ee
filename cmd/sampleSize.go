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
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/abtest"
)

var sampleSizeBaseline float64
var sampleSizeMDE float64
var sampleSizePower float64

var sampleSizeCmd = &cobra.Command{
	Use:   "sample-size",
	Short: "Plans the per-group sample size for an experiment",
	Long: `Computes the required users per group to detect a relative effect of
--mde on a baseline conversion rate with the requested power, at the
configured significance level.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runSampleSize()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sampleSizeCmd)

	sampleSizeCmd.Flags().Float64Var(&sampleSizeBaseline, "baseline", 0.30, "baseline conversion rate")
	sampleSizeCmd.Flags().Float64Var(&sampleSizeMDE, "mde", 0.05, "relative minimum detectable effect")
	sampleSizeCmd.Flags().Float64Var(&sampleSizePower, "power", 0.80, "target statistical power")
}

func runSampleSize() error {
	if sampleSizeBaseline <= 0 || sampleSizeBaseline >= 1 {
		return fmt.Errorf("baseline rate must be in (0, 1), got %v", sampleSizeBaseline)
	}
	if sampleSizePower <= 0 || sampleSizePower >= 1 {
		return fmt.Errorf("power must be in (0, 1), got %v", sampleSizePower)
	}

	alpha := viper.GetFloat64("significance-level")
	n := abtest.SampleSize(sampleSizeBaseline, sampleSizeMDE, sampleSizePower, alpha)

	fmt.Printf("Baseline rate: %.2f%%\n", sampleSizeBaseline*100)
	fmt.Printf("Minimum detectable effect: %.2f%% relative\n", sampleSizeMDE*100)
	fmt.Printf("Power: %.0f%%, alpha: %.3f\n", sampleSizePower*100, alpha)
	fmt.Printf("Required sample size: %d users per group\n", n)
	return nil
}
