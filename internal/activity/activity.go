// Package activity holds the static per-kind configuration: which covariates
// each survival model was trained on, which categorical inputs the user
// supplies, and how the resulting curve is displayed.
package activity

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnknownKind = errors.New("unknown activity kind")

type Kind string

const (
	KindEvent    Kind = "Event"
	KindEruption Kind = "Eruption"
)

// Kinds returns the supported kinds in selector order.
func Kinds() []Kind {
	return []Kind{KindEvent, KindEruption}
}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(strings.TrimSpace(s), string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

type InputType string

const (
	// InputYesNo is encoded as 1 for "Yes" and 0 for "No".
	InputYesNo InputType = "yes_no"
	// InputOrdinal is an integer used as-is within [Min, Max].
	InputOrdinal InputType = "ordinal"
)

type Input struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Type  InputType `json:"type"`
	Min   int       `json:"min,omitempty"`
	Max   int       `json:"max,omitempty"`
}

// Options lists the selector values in display order.
func (in Input) Options() []string {
	if in.Type == InputYesNo {
		return []string{"Yes", "No"}
	}
	opts := make([]string, 0, in.Max-in.Min+1)
	for i := in.Min; i <= in.Max; i++ {
		opts = append(opts, fmt.Sprintf("%d", i))
	}
	return opts
}

type PlotSpec struct {
	// TimeDivisor converts model time units to display units: x / TimeDivisor.
	TimeDivisor float64
	// LogRange is the displayed x range as log10 bounds.
	LogRange [2]float64
	XLabel   string
	YLabel   string
}

// Factor is the multiplicative form of TimeDivisor.
func (p PlotSpec) Factor() float64 {
	return 1 / p.TimeDivisor
}

// Bounds returns the displayed x range in display units.
func (p PlotSpec) Bounds() (float64, float64) {
	return math.Pow(10, p.LogRange[0]), math.Pow(10, p.LogRange[1])
}

type Schema struct {
	Kind       Kind
	ModelID    string
	Inputs     []Input
	Covariates []string
	Plot       PlotSpec
}

// Width is the feature vector length the kind's model expects.
func (s Schema) Width() int {
	return len(s.Inputs) + len(s.Covariates)
}

const exceedanceLabel = "Exceedance probability"

// Columns is every covariate the reference table may provide.
var Columns = []string{
	"stratovolcano", "caldera", "dome", "complex", "lava_cone", "compound", "subduction", "rift",
	"intraplate", "continental", "ctcrust1", "elevation", "volume", "eruptionssince1960", "avgrepose", "mafic",
	"intermediate", "felsic", "summit_crater", "h_bw", "ellip",
}

var schemas = map[Kind]Schema{
	KindEvent: {
		Kind:    KindEvent,
		ModelID: "event_gb",
		Inputs: []Input{
			{Name: "explosive", Label: "Explosive?", Type: InputYesNo},
			{Name: "continuous", Label: "Continuous?", Type: InputYesNo},
		},
		Covariates: []string{
			"stratovolcano", "dome", "lava_cone", "subduction", "continental", "elevation",
			"avgrepose", "intermediate", "felsic", "summit_crater", "h_bw", "ellip",
		},
		Plot: PlotSpec{
			TimeDivisor: 60 * 60,
			LogRange:    [2]float64{-3, 3},
			XLabel:      "Duration (hours)",
			YLabel:      exceedanceLabel,
		},
	},
	KindEruption: {
		Kind:    KindEruption,
		ModelID: "eruption_gb",
		Inputs: []Input{
			{Name: "vei", Label: "VEI", Type: InputOrdinal, Min: 0, Max: 5},
		},
		Covariates: Columns,
		Plot: PlotSpec{
			TimeDivisor: 1,
			LogRange:    [2]float64{-0.5, 4.5},
			XLabel:      "Duration (days)",
			YLabel:      exceedanceLabel,
		},
	},
}

func Lookup(kind Kind) (Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return s, nil
}

// Validate checks the static table. It runs once at startup.
func Validate() error {
	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}

	models := make(map[string]Kind)
	for _, kind := range Kinds() {
		s, err := Lookup(kind)
		if err != nil {
			return err
		}
		if s.Kind != kind {
			return fmt.Errorf("schema for %s is registered as %s", kind, s.Kind)
		}
		if s.ModelID == "" {
			return fmt.Errorf("%s: model id is empty", kind)
		}
		if other, dup := models[s.ModelID]; dup {
			return fmt.Errorf("%s: model id %q already used by %s", kind, s.ModelID, other)
		}
		models[s.ModelID] = kind

		if len(s.Covariates) == 0 {
			return fmt.Errorf("%s: no covariates", kind)
		}
		seen := make(map[string]bool, len(s.Covariates)+len(s.Inputs))
		for _, c := range s.Covariates {
			if !known[c] {
				return fmt.Errorf("%s: unknown covariate %q", kind, c)
			}
			if seen[c] {
				return fmt.Errorf("%s: duplicate covariate %q", kind, c)
			}
			seen[c] = true
		}
		for _, in := range s.Inputs {
			if in.Name == "" || seen[in.Name] {
				return fmt.Errorf("%s: bad input name %q", kind, in.Name)
			}
			seen[in.Name] = true
			switch in.Type {
			case InputYesNo:
			case InputOrdinal:
				if in.Min > in.Max {
					return fmt.Errorf("%s: input %s has empty range [%d, %d]", kind, in.Name, in.Min, in.Max)
				}
			default:
				return fmt.Errorf("%s: input %s has unknown type %q", kind, in.Name, in.Type)
			}
		}

		p := s.Plot
		if !(p.TimeDivisor > 0) {
			return fmt.Errorf("%s: time divisor must be positive", kind)
		}
		if !(p.LogRange[0] < p.LogRange[1]) {
			return fmt.Errorf("%s: empty x range %v", kind, p.LogRange)
		}
		if p.XLabel == "" || p.YLabel == "" {
			return fmt.Errorf("%s: missing axis label", kind)
		}
	}
	return nil
}
