// Package dashboardtest builds small volcano tables and model artifacts for
// tests of the dashboard and its HTTP surface.
package dashboardtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/internal/features"
	"github.com/eruption-duration/backend/internal/model"
	"github.com/eruption-duration/backend/internal/volcano"
)

// EventBaseline is the event model's baseline curve in seconds. A
// non-explosive event has risk 0 and gets exactly this curve.
var EventBaseline = model.Baseline{
	Times:    []float64{0, 3600, 7200},
	Survival: []float64{1.0, 0.8, 0.3},
}

var EruptionBaseline = model.Baseline{
	Times:    []float64{0.5, 2, 10, 100, 1000},
	Survival: []float64{0.95, 0.7, 0.4, 0.1, 0.02},
}

// Covariates sets every column to base plus the column's index in
// activity.Columns.
func Covariates(base float64) map[string]volcano.Covariate {
	m := make(map[string]volcano.Covariate, len(activity.Columns))
	for i, c := range activity.Columns {
		m[c] = volcano.Value(base + float64(i))
	}
	return m
}

// Table has etna and pinatubo for both kinds and fuji for events only.
func Table(t testing.TB) *volcano.Table {
	t.Helper()
	fuji := Covariates(300)
	fuji["ctcrust1"] = volcano.Covariate{}

	table, err := volcano.NewTable([]volcano.Record{
		volcano.NewRecord("etna", Covariates(100)),
		volcano.NewRecord("pinatubo", Covariates(200)),
		volcano.NewRecord("fuji", fuji),
	})
	require.NoError(t, err)
	return table
}

func featureNames(kind activity.Kind) []string {
	schema, _ := activity.Lookup(kind)
	return features.Names(schema)
}

// splitOnFirst raises risk by value when feature 0 exceeds threshold.
func splitOnFirst(threshold, value float64) model.Tree {
	return model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: threshold, Left: 1, Right: 2},
		{Feature: -1, Left: -1, Right: -1, Value: 0},
		{Feature: -1, Left: -1, Right: -1, Value: value},
	}}
}

func Artifacts() []model.Artifact {
	return []model.Artifact{
		{
			ID:           "event_gb",
			Kind:         string(activity.KindEvent),
			Version:      "test",
			Features:     featureNames(activity.KindEvent),
			LearningRate: 1,
			Trees:        []model.Tree{splitOnFirst(0.5, 0.5)},
			Baseline:     EventBaseline,
		},
		{
			ID:           "eruption_gb",
			Kind:         string(activity.KindEruption),
			Version:      "test",
			Features:     featureNames(activity.KindEruption),
			LearningRate: 1,
			Trees:        []model.Tree{splitOnFirst(2.5, 0.3)},
			Baseline:     EruptionBaseline,
		},
	}
}

// WriteArtifacts writes every fixture artifact to dir as <id>.json.
func WriteArtifacts(t testing.TB, dir string) {
	t.Helper()
	for _, a := range Artifacts() {
		data, err := json.Marshal(a)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, a.ID+model.ArtifactExt), data, 0o600))
	}
}

// Store returns a model store over a fresh directory of fixture artifacts.
func Store(t testing.TB) *model.Store {
	t.Helper()
	dir := t.TempDir()
	WriteArtifacts(t, dir)
	return model.NewStore(dir)
}
