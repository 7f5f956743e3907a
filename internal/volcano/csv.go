package volcano

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// UnmarshalCSV treats empty, NaN and NA-style cells as missing. Booleans are
// accepted for the structural indicator columns.
func (c *Covariate) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none":
		*c = Covariate{}
		return nil
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			*c = Covariate{}
			return nil
		}
		*c = Value(v)
		return nil
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid covariate value %q", s)
	}
	if b {
		*c = Value(1)
	} else {
		*c = Value(0)
	}
	return nil
}

type csvRow struct {
	VolcanoName        string    `csv:"volcanoname"`
	Stratovolcano      Covariate `csv:"stratovolcano"`
	Caldera            Covariate `csv:"caldera"`
	Dome               Covariate `csv:"dome"`
	Complex            Covariate `csv:"complex"`
	LavaCone           Covariate `csv:"lava_cone"`
	Compound           Covariate `csv:"compound"`
	Subduction         Covariate `csv:"subduction"`
	Rift               Covariate `csv:"rift"`
	Intraplate         Covariate `csv:"intraplate"`
	Continental        Covariate `csv:"continental"`
	CtCrust1           Covariate `csv:"ctcrust1"`
	Elevation          Covariate `csv:"elevation"`
	Volume             Covariate `csv:"volume"`
	EruptionsSince1960 Covariate `csv:"eruptionssince1960"`
	AvgRepose          Covariate `csv:"avgrepose"`
	Mafic              Covariate `csv:"mafic"`
	Intermediate       Covariate `csv:"intermediate"`
	Felsic             Covariate `csv:"felsic"`
	SummitCrater       Covariate `csv:"summit_crater"`
	HBW                Covariate `csv:"h_bw"`
	Ellip              Covariate `csv:"ellip"`
}

func (r *csvRow) record() Record {
	return NewRecord(r.VolcanoName, map[string]Covariate{
		"stratovolcano":      r.Stratovolcano,
		"caldera":            r.Caldera,
		"dome":               r.Dome,
		"complex":            r.Complex,
		"lava_cone":          r.LavaCone,
		"compound":           r.Compound,
		"subduction":         r.Subduction,
		"rift":               r.Rift,
		"intraplate":         r.Intraplate,
		"continental":        r.Continental,
		"ctcrust1":           r.CtCrust1,
		"elevation":          r.Elevation,
		"volume":             r.Volume,
		"eruptionssince1960": r.EruptionsSince1960,
		"avgrepose":          r.AvgRepose,
		"mafic":              r.Mafic,
		"intermediate":       r.Intermediate,
		"felsic":             r.Felsic,
		"summit_crater":      r.SummitCrater,
		"h_bw":               r.HBW,
		"ellip":              r.Ellip,
	})
}

// ReadCSV reads a headed CSV table. Columns absent from the header read as
// missing values.
func ReadCSV(in io.Reader) ([]Record, error) {
	var rows []*csvRow
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode csv: %w", err)
	}

	records := make([]Record, 0, len(rows))
	named := 0
	for _, row := range rows {
		if strings.TrimSpace(row.VolcanoName) != "" {
			named++
		}
		records = append(records, row.record())
	}
	if len(rows) > 0 && named == 0 {
		return nil, fmt.Errorf("csv has no volcanoname values")
	}
	return records, nil
}
