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

	"github.com/tunestats/tunestats/internal/dataset"
	"github.com/tunestats/tunestats/internal/generator"
	"github.com/tunestats/tunestats/internal/store"
)

var generateUsers int
var generateSessions int
var generateTracks int
var generatePlaylists int

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates a synthetic streaming dataset",
	Long: `Writes seeded synthetic users, tracks, sessions and playlists as CSV
files into --data-dir, and into the SQLite database when --database is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runGenerate()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVar(&generateUsers, "users", 1000, "number of users to generate")
	generateCmd.Flags().IntVar(&generateSessions, "sessions", 50000, "number of sessions to generate")
	generateCmd.Flags().IntVar(&generateTracks, "tracks", 5000, "number of tracks to generate")
	generateCmd.Flags().IntVar(&generatePlaylists, "playlists", 200, "number of playlists to generate")
}

func runGenerate() error {
	cfg := generator.DefaultConfig()
	cfg.NumUsers = generateUsers
	cfg.NumSessions = generateSessions
	cfg.NumTracks = generateTracks
	cfg.NumPlaylists = generatePlaylists
	cfg.Seed = viper.GetUint64("seed")

	gen, err := generator.New(cfg)
	if err != nil {
		return err
	}
	ds := gen.GenerateAll()

	dir := viper.GetString("data-dir")
	if err := dataset.Save(ds, dir); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	fmt.Printf("Wrote %d users, %d tracks, %d sessions to %s\n",
		len(ds.Users), len(ds.Tracks), len(ds.Sessions), dir)

	if dbPath := viper.GetString("database"); dbPath != "" {
		st, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()
		if err := st.SaveDataset(ds); err != nil {
			return fmt.Errorf("saving dataset to sqlite: %w", err)
		}
		fmt.Printf("Saved dataset to %s\n", dbPath)
	}
	return nil
}
