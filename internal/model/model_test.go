package model

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const artifactJSON = `{
  "id": "event_gb",
  "kind": "Event",
  "version": "test",
  "features": ["explosive", "elevation"],
  "learning_rate": 0.5,
  "offset": 0.1,
  "trees": [
    {"nodes": [
      {"feature": 0, "threshold": 0.5, "left": 1, "right": 2},
      {"feature": -1, "left": -1, "right": -1, "value": -1},
      {"feature": -1, "left": -1, "right": -1, "value": 1}
    ]},
    {"nodes": [
      {"feature": 1, "threshold": 1000, "left": 1, "right": 2},
      {"feature": -1, "left": -1, "right": -1, "value": 0},
      {"feature": -1, "left": -1, "right": -1, "value": 0.2}
    ]}
  ],
  "baseline_survival": {
    "times": [0, 3600, 7200, 36000],
    "survival": [1.0, 0.8, 0.3, 0.05]
  }
}`

func loadFixture(t *testing.T) *Model {
	t.Helper()
	m, err := Load(strings.NewReader(artifactJSON))
	require.NoError(t, err)
	return m
}

func TestLoad(t *testing.T) {
	m := loadFixture(t)
	assert := assert.New(t)
	assert.Equal("event_gb", m.ID())
	assert.Equal("Event", m.Kind())
	assert.Equal("test", m.Version())
	assert.Equal(2, m.NumFeatures())
	assert.Equal([]string{"explosive", "elevation"}, m.FeatureNames())
}

func TestRisk(t *testing.T) {
	m := loadFixture(t)

	tests := []struct {
		row    []float64
		expect float64
	}{
		{row: []float64{0, 500}, expect: 0.1 + 0.5*(-1+0)},
		{row: []float64{1, 500}, expect: 0.1 + 0.5*(1+0)},
		{row: []float64{1, 3000}, expect: 0.1 + 0.5*(1+0.2)},
		// threshold comparison is inclusive on the left branch
		{row: []float64{0.5, 1000}, expect: 0.1 + 0.5*(-1+0)},
	}
	for _, tc := range tests {
		risk, err := m.Risk(tc.row)
		require.NoError(t, err)
		assert.InDelta(t, tc.expect, risk, 1e-12, "%v", tc.row)
	}
}

func TestPredictSurvivalFunction(t *testing.T) {
	m := loadFixture(t)

	curves, err := m.PredictSurvivalFunction([][]float64{{1, 3000}, {0, 10}})
	require.NoError(t, err)
	require.Len(t, curves, 2)

	baseline := []float64{1.0, 0.8, 0.3, 0.05}
	for r, risk := range []float64{0.7, -0.4} {
		c := curves[r]
		require.NoError(t, c.Validate())
		assert.Equal(t, []float64{0, 3600, 7200, 36000}, c.X)
		for i, s := range baseline {
			assert.InDelta(t, math.Pow(s, math.Exp(risk)), c.Y[i], 1e-12)
		}
	}

	// a higher risk row never survives longer
	for i := range curves[0].Y {
		assert.LessOrEqual(t, curves[0].Y[i], curves[1].Y[i])
	}
}

func TestPredictSurvivalFunction_Errors(t *testing.T) {
	m := loadFixture(t)

	tests := []struct {
		name string
		rows [][]float64
	}{
		{name: "empty batch", rows: nil},
		{name: "short row", rows: [][]float64{{1}}},
		{name: "long row", rows: [][]float64{{1, 2, 3}}},
		{name: "nan", rows: [][]float64{{1, math.NaN()}}},
		{name: "inf", rows: [][]float64{{math.Inf(1), 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.PredictSurvivalFunction(tc.rows)
			assert.ErrorIs(t, err, ErrInference)
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	valid := func() Artifact {
		return Artifact{
			ID:           "m",
			Features:     []string{"a"},
			LearningRate: 1,
			Trees: []Tree{{Nodes: []Node{
				{Feature: 0, Threshold: 0, Left: 1, Right: 2},
				{Left: -1, Right: -1, Value: 1},
				{Left: -1, Right: -1, Value: 2},
			}}},
			Baseline: Baseline{Times: []float64{0, 1}, Survival: []float64{1, 0.5}},
		}
	}

	_, err := New(valid())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Artifact)
	}{
		{name: "no features", mutate: func(a *Artifact) { a.Features = nil }},
		{name: "nan learning rate", mutate: func(a *Artifact) { a.LearningRate = math.NaN() }},
		{name: "baseline length", mutate: func(a *Artifact) { a.Baseline.Survival = []float64{1} }},
		{name: "empty baseline", mutate: func(a *Artifact) { a.Baseline = Baseline{} }},
		{name: "unsorted times", mutate: func(a *Artifact) { a.Baseline.Times = []float64{1, 1} }},
		{name: "increasing survival", mutate: func(a *Artifact) { a.Baseline.Survival = []float64{0.5, 0.6} }},
		{name: "survival above one", mutate: func(a *Artifact) { a.Baseline.Survival = []float64{1.5, 0.6} }},
		{name: "empty tree", mutate: func(a *Artifact) { a.Trees = []Tree{{}} }},
		{name: "cyclic child", mutate: func(a *Artifact) { a.Trees[0].Nodes[0].Left = 0 }},
		{name: "child out of range", mutate: func(a *Artifact) { a.Trees[0].Nodes[0].Right = 7 }},
		{name: "feature out of range", mutate: func(a *Artifact) { a.Trees[0].Nodes[0].Feature = 3 }},
		{name: "nan leaf", mutate: func(a *Artifact) { a.Trees[0].Nodes[1].Value = math.NaN() }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := valid()
			tc.mutate(&a)
			_, err := New(a)
			assert.ErrorIs(t, err, ErrModelLoad)
		})
	}
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(strings.NewReader("not json"))
	assert.ErrorIs(t, err, ErrModelLoad)

	_, err = Load(strings.NewReader(`{"features": ["a"], "unexpected": 1}`))
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestStepFunction_At(t *testing.T) {
	f := StepFunction{X: []float64{0, 1, 2}, Y: []float64{1.0, 0.8, 0.3}}

	tests := []struct {
		x      float64
		expect float64
	}{
		{x: -1, expect: 1},
		{x: 0, expect: 1.0},
		{x: 0.999, expect: 1.0},
		{x: 1, expect: 0.8},
		{x: 1.5, expect: 0.8},
		{x: 2, expect: 0.3},
		{x: 1e9, expect: 0.3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expect, f.At(tc.x), "x=%v", tc.x)
	}
}

func TestStepFunction_Validate(t *testing.T) {
	assert.NoError(t, StepFunction{X: []float64{0, 1}, Y: []float64{1, 0.5}}.Validate())
	assert.Error(t, StepFunction{X: []float64{0, 1}, Y: []float64{0.5, 0.6}}.Validate())
	assert.Error(t, StepFunction{X: []float64{1, 0}, Y: []float64{1, 0.5}}.Validate())
	assert.Error(t, StepFunction{X: []float64{0}, Y: []float64{1, 0.5}}.Validate())
	assert.Error(t, StepFunction{X: []float64{0}, Y: []float64{-0.1}}.Validate())
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event_gb.json")
	require.NoError(t, os.WriteFile(path, []byte(artifactJSON), 0o600))

	s := NewStore(dir)
	assert.Equal(t, path, s.Path("event_gb"))

	first, err := s.Get("event_gb")
	require.NoError(t, err)
	assert.Equal(t, 2, first.NumFeatures())

	// cached: the artifact is not read again
	require.NoError(t, os.Remove(path))
	second, err := s.Get("event_gb")
	require.NoError(t, err)
	assert.Same(t, first.(*Model), second.(*Model))
	assert.Equal(t, []string{"event_gb"}, s.Loaded())

	_, err = s.Get("eruption_gb")
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.Equal(t, []string{"event_gb"}, s.Loaded())
}

func TestStore_IDMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eruption_gb.json"), []byte(artifactJSON), 0o600))

	s := NewStore(dir)
	_, err := s.Get("eruption_gb")
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.Error(t, s.Preload("eruption_gb"))
}

func TestStore_FailedLoadNotCached(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Get("event_gb")
	require.ErrorIs(t, err, ErrModelLoad)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "event_gb.json"), []byte(artifactJSON), 0o600))
	require.NoError(t, s.Preload("event_gb"))
	_, err = s.Get("event_gb")
	assert.NoError(t, err)
}
