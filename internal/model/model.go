// Package model evaluates pretrained gradient-boosted Cox survival models
// exported as JSON artifacts.
//
// An artifact stores the boosted regression trees and the Breslow baseline
// survival function. For a feature row x the survivor function is
//
//	S(t | x) = S0(t) ^ exp(offset + learning_rate * sum(tree(x)))
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrModelLoad = errors.New("failed to load survival model")
	ErrInference = errors.New("survival model rejected input")
)

// Node is a regression tree node. A node with Left < 0 is a leaf; otherwise
// rows with x[Feature] <= Threshold descend Left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

type Baseline struct {
	Times    []float64 `json:"times"`
	Survival []float64 `json:"survival"`
}

type Artifact struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Version      string   `json:"version,omitempty"`
	Features     []string `json:"features"`
	LearningRate float64  `json:"learning_rate"`
	Offset       float64  `json:"offset"`
	Trees        []Tree   `json:"trees"`
	Baseline     Baseline `json:"baseline_survival"`
}

// Predictor is the inference surface of a loaded model.
type Predictor interface {
	NumFeatures() int
	PredictSurvivalFunction(rows [][]float64) ([]StepFunction, error)
}

type Model struct {
	artifact Artifact
}

func Load(r io.Reader) (*Model, error) {
	var a Artifact
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return New(a)
}

func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer f.Close()
	return Load(f)
}

// New validates a and wraps it. Validation failures are ErrModelLoad.
func New(a Artifact) (*Model, error) {
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, a.ID, err)
	}
	return &Model{artifact: a}, nil
}

func (a Artifact) validate() error {
	if len(a.Features) == 0 {
		return errors.New("no features")
	}
	if !finite(a.LearningRate) || !finite(a.Offset) {
		return errors.New("learning rate and offset must be finite")
	}

	b := a.Baseline
	if len(b.Times) == 0 || len(b.Times) != len(b.Survival) {
		return fmt.Errorf("baseline has %d times and %d survival values", len(b.Times), len(b.Survival))
	}
	for i := range b.Times {
		if !finite(b.Times[i]) || b.Times[i] < 0 {
			return fmt.Errorf("baseline time %d is %v", i, b.Times[i])
		}
		if !(b.Survival[i] >= 0 && b.Survival[i] <= 1) {
			return fmt.Errorf("baseline survival %d is %v", i, b.Survival[i])
		}
		if i > 0 && b.Times[i] <= b.Times[i-1] {
			return fmt.Errorf("baseline times not strictly increasing at %d", i)
		}
		if i > 0 && b.Survival[i] > b.Survival[i-1] {
			return fmt.Errorf("baseline survival increases at %d", i)
		}
	}

	for ti, tree := range a.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Left < 0 {
				if !finite(n.Value) {
					return fmt.Errorf("tree %d leaf %d value is %v", ti, ni, n.Value)
				}
				continue
			}
			// children always follow their parent, so traversal terminates
			if n.Left <= ni || n.Right <= ni || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has bad children %d/%d", ti, ni, n.Left, n.Right)
			}
			if n.Feature < 0 || n.Feature >= len(a.Features) {
				return fmt.Errorf("tree %d node %d splits on feature %d of %d", ti, ni, n.Feature, len(a.Features))
			}
			if math.IsNaN(n.Threshold) {
				return fmt.Errorf("tree %d node %d threshold is NaN", ti, ni)
			}
		}
	}
	return nil
}

func (m *Model) ID() string {
	return m.artifact.ID
}

func (m *Model) Kind() string {
	return m.artifact.Kind
}

func (m *Model) Version() string {
	return m.artifact.Version
}

func (m *Model) NumFeatures() int {
	return len(m.artifact.Features)
}

func (m *Model) FeatureNames() []string {
	return append([]string(nil), m.artifact.Features...)
}

// Risk is the boosted log-hazard ratio for one row.
func (m *Model) Risk(row []float64) (float64, error) {
	if len(row) != m.NumFeatures() {
		return 0, fmt.Errorf("%w: got %d features, model %s expects %d", ErrInference, len(row), m.artifact.ID, m.NumFeatures())
	}
	for i, v := range row {
		if !finite(v) {
			return 0, fmt.Errorf("%w: feature %s is %v", ErrInference, m.artifact.Features[i], v)
		}
	}

	sum := 0.0
	for _, tree := range m.artifact.Trees {
		sum += tree.eval(row)
	}
	return m.artifact.Offset + m.artifact.LearningRate*sum, nil
}

func (t Tree) eval(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// PredictSurvivalFunction returns one survivor function per row, defined on
// the baseline event times.
func (m *Model) PredictSurvivalFunction(rows [][]float64) ([]StepFunction, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInference)
	}

	out := make([]StepFunction, len(rows))
	for r, row := range rows {
		risk, err := m.Risk(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}

		ratio := math.Exp(risk)
		if math.IsInf(ratio, 0) || math.IsNaN(ratio) {
			return nil, fmt.Errorf("%w: row %d risk %v overflows", ErrInference, r, risk)
		}

		b := m.artifact.Baseline
		x := append([]float64(nil), b.Times...)
		y := make([]float64, len(b.Survival))
		for i, s := range b.Survival {
			y[i] = clamp01(math.Pow(s, ratio))
		}
		out[r] = StepFunction{X: x, Y: y}
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
