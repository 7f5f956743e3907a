package volcano

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/pkg/logger"
)

var ErrNotFound = errors.New("volcano not found")

// Covariate is a nullable numeric cell of the reference table.
type Covariate struct {
	Value float64
	Valid bool
}

func Value(v float64) Covariate {
	return Covariate{Value: v, Valid: true}
}

// Record is one row of the reference table. Key is the lowercased name.
type Record struct {
	Name       string
	Key        string
	Covariates map[string]Covariate
}

func NewRecord(name string, covariates map[string]Covariate) Record {
	return Record{
		Name:       name,
		Key:        normalize(name),
		Covariates: covariates,
	}
}

// Complete reports whether every listed covariate is present.
func (r Record) Complete(columns []string) bool {
	for _, c := range columns {
		if cv, ok := r.Covariates[c]; !ok || !cv.Valid {
			return false
		}
	}
	return true
}

// Table is the read-only reference table with one pre-filtered snapshot per
// activity kind.
type Table struct {
	records   []Record
	snapshots map[activity.Kind]*Snapshot
}

func NewTable(records []Record) (*Table, error) {
	t := &Table{
		records:   records,
		snapshots: make(map[activity.Kind]*Snapshot),
	}
	for _, kind := range activity.Kinds() {
		schema, err := activity.Lookup(kind)
		if err != nil {
			return nil, err
		}
		t.snapshots[kind] = newSnapshot(kind, schema.Covariates, records)
	}
	return t, nil
}

// Load reads the table from a feather/Arrow IPC file or a CSV file, chosen by
// extension.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volcano table: %w", err)
	}
	defer file.Close()

	var records []Record
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".feather", ".arrow", ".ipc":
		records, err = ReadFeather(file)
	case ".csv":
		records, err = ReadCSV(file)
	default:
		return nil, fmt.Errorf("unsupported volcano table format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read volcano table %s: %w", path, err)
	}

	t, err := NewTable(records)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("path", path), zap.Int("rows", len(records))}
	for kind, s := range t.snapshots {
		fields = append(fields, zap.Int(strings.ToLower(string(kind))+"_rows", s.Len()))
	}
	logger.Info("Volcano table loaded", fields...)

	return t, nil
}

func (t *Table) Len() int {
	return len(t.records)
}

func (t *Table) ForKind(kind activity.Kind) (*Snapshot, error) {
	s, ok := t.snapshots[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", activity.ErrUnknownKind, kind)
	}
	return s, nil
}

// Snapshot holds the rows usable for one kind: those with every required
// covariate present.
type Snapshot struct {
	kind       activity.Kind
	covariates []string
	records    []Record
	index      map[string]int
}

func newSnapshot(kind activity.Kind, covariates []string, records []Record) *Snapshot {
	s := &Snapshot{
		kind:       kind,
		covariates: covariates,
		index:      make(map[string]int),
	}
	for _, r := range records {
		if r.Key == "" || !r.Complete(covariates) {
			continue
		}
		// the first row wins for duplicated names
		if _, dup := s.index[r.Key]; dup {
			continue
		}
		s.index[r.Key] = len(s.records)
		s.records = append(s.records, r)
	}
	return s
}

func (s *Snapshot) Kind() activity.Kind {
	return s.kind
}

func (s *Snapshot) Len() int {
	return len(s.records)
}

// Names returns selector labels in table order.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.records))
	for i, r := range s.records {
		names[i] = DisplayName(r.Name)
	}
	return names
}

func (s *Snapshot) Lookup(name string) (Record, error) {
	i, ok := s.index[normalize(name)]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q has no complete %s record", ErrNotFound, name, s.kind)
	}
	return s.records[i], nil
}

// DisplayName upper-cases the first letter and lower-cases the rest.
func DisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	runes := []rune(strings.ToLower(name))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
