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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/audioapi"
	"github.com/tunestats/tunestats/internal/store"
)

var audioAPIKey string

var fetchAudioCmd = &cobra.Command{
	Use:   "fetch-audio",
	Short: "Fetches audio features from the catalog API",
	Long: `Refreshes the audio features of every stored track from the catalog
service. Without --audio-api-key the client serves deterministic mock
features, so the command stays usable offline. Requires --database.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runFetchAudio(cmd.Context())
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(fetchAudioCmd)

	fetchAudioCmd.Flags().StringVar(&audioAPIKey, "audio-api-key", "", "catalog API key (empty selects mock mode)")
	viper.BindPFlag("audio-api-key", fetchAudioCmd.Flags().Lookup("audio-api-key"))
}

func runFetchAudio(ctx context.Context) error {
	dbPath := viper.GetString("database")
	if dbPath == "" {
		return fmt.Errorf("fetch-audio requires --database")
	}

	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	trackIDs, err := st.TrackIDs()
	if err != nil {
		return err
	}
	if len(trackIDs) == 0 {
		return fmt.Errorf("no tracks in database - run import or generate first")
	}

	client := audioapi.New(viper.GetString("audio-api-key"))
	if client.MockMode() {
		fmt.Println("No API key set, using deterministic mock features")
	}

	features, err := client.GetAudioFeaturesBatch(ctx, trackIDs)
	if err != nil {
		return fmt.Errorf("fetching audio features: %w", err)
	}

	if err := st.UpdateTrackFeatures(features); err != nil {
		return err
	}
	fmt.Printf("Updated audio features for %d tracks\n", len(features))
	return nil
}
