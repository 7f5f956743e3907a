package volcano

import (
	"fmt"
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/eruption-duration/backend/internal/activity"
)

const nameColumn = "volcanoname"

// ReadFeather reads a feather v2 (Arrow IPC file) table as written by
// pandas.DataFrame.to_feather. Compressed record batches are supported.
func ReadFeather(r ipc.ReadAtSeeker) ([]Record, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	nameIdx := schema.FieldIndices(nameColumn)
	if len(nameIdx) == 0 {
		return nil, fmt.Errorf("missing %s column", nameColumn)
	}

	columns := make(map[string]int)
	for _, c := range activity.Columns {
		if idx := schema.FieldIndices(c); len(idx) > 0 {
			columns[c] = idx[0]
		}
	}

	var records []Record
	for i := 0; i < fr.NumRecords(); i++ {
		// owned by the reader and valid until the next call
		batch, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record batch %d: %w", i, err)
		}

		names := batch.Column(nameIdx[0])
		for row := 0; row < int(batch.NumRows()); row++ {
			name, err := stringAt(names, row)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", nameColumn, err)
			}

			covariates := make(map[string]Covariate, len(columns))
			for c, idx := range columns {
				cv, err := covariateAt(batch.Column(idx), row)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", c, err)
				}
				covariates[c] = cv
			}
			records = append(records, NewRecord(name, covariates))
		}
	}
	return records, nil
}

func stringAt(col arrow.Array, row int) (string, error) {
	if col.IsNull(row) {
		return "", nil
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(row), nil
	case *array.LargeString:
		return a.Value(row), nil
	case *array.Dictionary:
		return stringAt(a.Dictionary(), a.GetValueIndex(row))
	default:
		return "", fmt.Errorf("unsupported name type %s", col.DataType())
	}
}

func covariateAt(col arrow.Array, row int) (Covariate, error) {
	if col.IsNull(row) {
		return Covariate{}, nil
	}

	var v float64
	switch a := col.(type) {
	case *array.Float64:
		v = a.Value(row)
	case *array.Float32:
		v = float64(a.Value(row))
	case *array.Int64:
		v = float64(a.Value(row))
	case *array.Int32:
		v = float64(a.Value(row))
	case *array.Int16:
		v = float64(a.Value(row))
	case *array.Int8:
		v = float64(a.Value(row))
	case *array.Uint8:
		v = float64(a.Value(row))
	case *array.Boolean:
		if a.Value(row) {
			v = 1
		}
	default:
		return Covariate{}, fmt.Errorf("unsupported covariate type %s", col.DataType())
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Covariate{}, nil
	}
	return Value(v), nil
}
