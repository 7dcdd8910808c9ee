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

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/dataset"
	"github.com/tunestats/tunestats/internal/store"
)

var cfgFile string
var dataDir string
var databasePath string
var outDir string
var significanceLevel float64
var cohortPeriod string
var churnDays int
var randomSeed uint64
var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tunestats",
	Short: "Performs analysis on music streaming data",
	Long: `Analyzes listening sessions: per-user feature engineering, cohort
retention, funnel analysis, A/B test evaluation, and skip prediction.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default is $HOME/.tunestats.yaml)")

	rootCmd.PersistentFlags().StringVar(
		&dataDir, "data-dir", "./data/raw", "Directory containing the CSV dataset")
	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.PersistentFlags().StringVarP(
		&databasePath, "database", "d", "", "Path to the SQLite database (optional)")
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))

	rootCmd.PersistentFlags().StringVarP(
		&outDir, "out-dir", "o", "./data/processed", "Directory for analysis output")
	viper.BindPFlag("out-dir", rootCmd.PersistentFlags().Lookup("out-dir"))

	rootCmd.PersistentFlags().Float64Var(
		&significanceLevel, "significance-level", 0.05, "Two-sided alpha for experiment evaluation")
	viper.BindPFlag("significance-level", rootCmd.PersistentFlags().Lookup("significance-level"))

	rootCmd.PersistentFlags().StringVar(
		&cohortPeriod, "cohort-period", "monthly", "Cohort granularity: weekly, monthly, or quarterly")
	viper.BindPFlag("cohort-period", rootCmd.PersistentFlags().Lookup("cohort-period"))

	rootCmd.PersistentFlags().IntVar(
		&churnDays, "churn-days", 30, "Days of inactivity before a user counts as at risk")
	viper.BindPFlag("churn-days", rootCmd.PersistentFlags().Lookup("churn-days"))

	rootCmd.PersistentFlags().Uint64Var(
		&randomSeed, "seed", 42, "Seed for all randomized steps")
	viper.BindPFlag("seed", rootCmd.PersistentFlags().Lookup("seed"))

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".tunestats" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".tunestats")
	}

	viper.SetEnvPrefix("tunestats")
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// See https://github.com/spf13/viper/pull/852
	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		if viper.IsSet(f.Name) && viper.GetString(f.Name) != "" {
			rootCmd.Flags().Set(f.Name, viper.GetString(f.Name))
		}
	})
}

// loadData reads the dataset from sqlite when --database points at an
// existing file with data, otherwise from the CSV directory.
func loadData() (*dataset.Dataset, error) {
	dbPath := viper.GetString("database")
	if dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			st, err := store.New(dbPath)
			if err != nil {
				return nil, fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			n, err := st.CountSessions()
			if err != nil {
				return nil, err
			}
			if n > 0 {
				log.WithField("database", dbPath).Info("loading dataset from sqlite")
				return st.LoadDataset()
			}
		}
	}
	return dataset.Load(viper.GetString("data-dir"))
}

func ensureOutDir() (string, error) {
	dir := viper.GetString("out-dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory %q: %w", dir, err)
	}
	return dir, nil
}

func outPath(name string) (string, error) {
	dir, err := ensureOutDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
