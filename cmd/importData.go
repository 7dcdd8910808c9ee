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
	"github.com/tunestats/tunestats/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Imports the CSV dataset into SQLite",
	Long: `Validates and loads the CSV files from --data-dir, then persists them
in the SQLite database so later commands skip the CSV parse.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runImport()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport() error {
	dbPath := viper.GetString("database")
	if dbPath == "" {
		return fmt.Errorf("import requires --database")
	}

	ds, err := dataset.Load(viper.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := st.SaveDataset(ds); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	fmt.Printf("Imported %d users, %d tracks, %d sessions into %s\n",
		len(ds.Users), len(ds.Tracks), len(ds.Sessions), dbPath)
	return nil
}
