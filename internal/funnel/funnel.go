// Package funnel computes stage-wise conversion and drop-off over ordered
// user-count checkpoints, with playlist-completion and user-activation
// instantiations.
package funnel

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Stage is one checkpoint in an ordered funnel. ConversionRate is measured
// against stage 0, DropOffRate against the previous stage.
type Stage struct {
	Name           string
	Users          int
	ConversionRate float64
	DropOffRate    float64
}

// StageCount is a raw checkpoint before rates are derived.
type StageCount struct {
	Name  string
	Users int
}

// Report is the outcome of one funnel computation, threaded explicitly to
// the summary helpers.
type Report struct {
	Stages  []Stage
	Metrics map[string]float64
}

// Build derives conversion and drop-off rates from ordered stage counts.
// Stage 0 always has conversion 1 (when non-empty) and drop-off 0; a zero
// previous-stage count yields drop-off 0 rather than a division error.
func Build(counts []StageCount) []Stage {
	stages := make([]Stage, 0, len(counts))
	if len(counts) == 0 {
		return stages
	}

	total := counts[0].Users
	prev := total
	for i, c := range counts {
		var conversion, dropOff float64
		if total > 0 {
			conversion = float64(c.Users) / float64(total)
		}
		if i > 0 && prev > 0 {
			dropOff = float64(prev-c.Users) / float64(prev)
		}
		stages = append(stages, Stage{
			Name:           c.Name,
			Users:          c.Users,
			ConversionRate: conversion,
			DropOffRate:    dropOff,
		})
		prev = c.Users
	}
	return stages
}

// BiggestDropOff returns the stage with the largest drop-off rate, stage 0
// excluded, first occurrence winning ties. "unknown" when there is nothing
// to compare.
func BiggestDropOff(stages []Stage) string {
	name := "unknown"
	if len(stages) < 2 {
		return name
	}
	max := 0.0
	for _, s := range stages[1:] {
		if s.DropOffRate > max {
			max = s.DropOffRate
			name = s.Name
		}
	}
	return name
}

// dropOffFlagThreshold is the drop-off rate above which a stage gets a
// recommendation flag.
const dropOffFlagThreshold = 0.20

// Recommendations flags stages with heavy drop-off. An empty report yields
// a usage hint; a clean one yields a single healthy message.
func Recommendations(stages []Stage) []string {
	if len(stages) == 0 {
		return []string{"Run funnel analysis first to generate recommendations."}
	}

	var recs []string
	for _, s := range stages[1:] {
		if s.DropOffRate > dropOffFlagThreshold {
			recs = append(recs, fmt.Sprintf(
				"High drop-off (%.1f%%) at %q. Consider optimizing this stage.",
				s.DropOffRate*100, s.Name))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Funnel performance looks healthy. Continue monitoring.")
	}
	return recs
}

func logStages(kind string, stages []Stage) {
	for _, s := range stages {
		log.WithFields(log.Fields{
			"funnel":     kind,
			"stage":      s.Name,
			"users":      s.Users,
			"conversion": s.ConversionRate,
			"drop_off":   s.DropOffRate,
		}).Debug("funnel stage")
	}
}
