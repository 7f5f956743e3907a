// Package features turns a dashboard selection into the ordered numeric
// feature vector a survival model was trained on.
package features

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/internal/volcano"
)

var (
	ErrVolcanoNotFound = volcano.ErrNotFound
	ErrSchemaMismatch  = errors.New("feature vector does not match model schema")
	ErrInvalidInput    = errors.New("invalid categorical input")
)

var yesNo = map[string]float64{"no": 0, "yes": 1}

// Selection is the user's choice. Inputs is keyed by activity.Input name and
// holds the selector text, e.g. "Yes" or "4".
type Selection struct {
	Volcano string
	Inputs  map[string]string
}

// Vector is laid out as categorical inputs in schema order followed by
// covariates in schema order.
type Vector []float64

// Map builds the feature vector for sel. The snapshot must be the one
// filtered for schema.Kind.
func Map(schema activity.Schema, snap *volcano.Snapshot, sel Selection) (Vector, error) {
	if snap.Kind() != schema.Kind {
		return nil, fmt.Errorf("%w: %s snapshot used for %s schema", ErrSchemaMismatch, snap.Kind(), schema.Kind)
	}

	record, err := snap.Lookup(sel.Volcano)
	if err != nil {
		return nil, err
	}

	vec := make(Vector, 0, schema.Width())
	for _, in := range schema.Inputs {
		v, err := Encode(in, sel.Inputs[in.Name])
		if err != nil {
			return nil, err
		}
		vec = append(vec, v)
	}

	for _, c := range schema.Covariates {
		cv, ok := record.Covariates[c]
		if !ok || !cv.Valid {
			// unreachable for a snapshot built from the same schema
			return nil, fmt.Errorf("%w: %s has no %s", ErrSchemaMismatch, record.Name, c)
		}
		vec = append(vec, cv.Value)
	}

	if err := CheckWidth(vec, schema.Width()); err != nil {
		return nil, err
	}
	return vec, nil
}

// Encode converts one selector value to its numeric feature.
func Encode(in activity.Input, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	switch in.Type {
	case activity.InputYesNo:
		v, ok := yesNo[strings.ToLower(raw)]
		if !ok {
			return 0, fmt.Errorf("%w: %s must be Yes or No, got %q", ErrInvalidInput, in.Name, raw)
		}
		return v, nil
	case activity.InputOrdinal:
		n, err := strconv.Atoi(raw)
		if err != nil || n < in.Min || n > in.Max {
			return 0, fmt.Errorf("%w: %s must be an integer in [%d, %d], got %q", ErrInvalidInput, in.Name, in.Min, in.Max, raw)
		}
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidInput, in.Name, in.Type)
	}
}

// CheckWidth fails with ErrSchemaMismatch when v does not have the expected
// number of features.
func CheckWidth(v Vector, expected int) error {
	if len(v) != expected {
		return fmt.Errorf("%w: got %d features, expected %d", ErrSchemaMismatch, len(v), expected)
	}
	return nil
}

// Names lists the feature names in vector order.
func Names(schema activity.Schema) []string {
	names := make([]string, 0, schema.Width())
	for _, in := range schema.Inputs {
		names = append(names, in.Name)
	}
	return append(names, schema.Covariates...)
}

// CheckNames compares a model's training feature order with the vector
// layout for schema.
func CheckNames(schema activity.Schema, names []string) error {
	want := Names(schema)
	if len(names) != len(want) {
		return fmt.Errorf("%w: model has %d features, %s vector has %d", ErrSchemaMismatch, len(names), schema.Kind, len(want))
	}
	for i := range want {
		if !strings.EqualFold(names[i], want[i]) {
			return fmt.Errorf("%w: feature %d is %q in the model, %q in the vector", ErrSchemaMismatch, i, names[i], want[i])
		}
	}
	return nil
}

// Batch wraps v as a single-row batch.
func (v Vector) Batch() [][]float64 {
	return [][]float64{v}
}

// String renders the vector with full precision; equal vectors render equal.
func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
