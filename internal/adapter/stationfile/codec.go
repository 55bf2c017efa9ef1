package stationfile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
)

// Column names as they appear in station tables and the prediction output.
const (
	ColYear      = "Year"
	ColMonth     = "Month"
	ColDay       = "Day"
	ColMaxTemp   = "Max_Temp"
	ColRainfall  = "Rainfall"
	ColWindSpeed = "Wind_Speed"
	ColHumidity  = "Humidity"
	ColLat       = "Lat"
	ColLon       = "Lon"
	ColStation   = "Station"
	ColState     = "state"
	ColAPI       = "API"
	ColFFDI      = "FFDI"
	ColRating    = "FFDI_Rate"
)

// BaseColumns are the measured columns every station table carries.
var BaseColumns = []string{
	ColYear, ColMonth, ColDay,
	ColMaxTemp, ColRainfall, ColWindSpeed, ColHumidity,
	ColLat, ColLon, ColStation, ColState,
}

// DerivedColumns follow BaseColumns once indices have been computed.
var DerivedColumns = []string{ColAPI, ColFFDI, ColRating}

// PredictionColumns is the consolidated output header.
func PredictionColumns() []string {
	return append(append([]string{}, BaseColumns...), DerivedColumns...)
}

var errMissingColumn = errors.New("missing column")

// decodeRows maps header-keyed records to observations. Extra columns are
// ignored; blank lines are skipped. When requireDerived is set the API, FFDI,
// and FFDI_Rate columns must exist.
func decodeRows(records [][]string, requireDerived bool) ([]domain.DailyObservation, error) {
	if len(records) == 0 {
		return nil, &domain.MalformedRecordError{Row: -1, Field: "header", Err: errors.New("no header row")}
	}

	idx := make(map[string]int, len(records[0]))
	for j, name := range records[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = j
		}
	}
	required := BaseColumns
	if requireDerived {
		required = PredictionColumns()
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, &domain.MalformedRecordError{Row: -1, Field: col, Err: errMissingColumn}
		}
	}

	rows := make([]domain.DailyObservation, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row, err := decodeRow(len(rows), rec, idx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(i int, rec []string, idx map[string]int) (domain.DailyObservation, error) {
	d := rowDecoder{row: i, rec: rec, idx: idx}
	obs := domain.DailyObservation{
		Year:      d.integer(ColYear),
		Month:     d.integer(ColMonth),
		Day:       d.integer(ColDay),
		MaxTemp:   d.number(ColMaxTemp),
		Rainfall:  d.number(ColRainfall),
		WindSpeed: d.number(ColWindSpeed),
		Humidity:  d.number(ColHumidity),
		Lat:       d.number(ColLat),
		Lon:       d.number(ColLon),
		Station:   d.cell(ColStation),
		State:     d.cell(ColState),
		API:       d.optionalFloat(ColAPI),
		FFDI:      d.optionalFloat(ColFFDI),
	}
	if s := d.cell(ColRating); s != "" && d.err == nil {
		r, err := domain.ParseRating(s)
		if err != nil {
			d.err = &domain.MalformedRecordError{Row: i, Field: ColRating, Err: err}
		}
		obs.Rating = r
	}
	return obs, d.err
}

// rowDecoder records the first conversion failure so a row decodes in one
// straight-line expression.
type rowDecoder struct {
	row int
	rec []string
	idx map[string]int
	err error
}

func (d *rowDecoder) cell(col string) string {
	j, ok := d.idx[col]
	if !ok || j >= len(d.rec) {
		return ""
	}
	return strings.TrimSpace(d.rec[j])
}

func (d *rowDecoder) fail(col string, err error) {
	if d.err == nil {
		d.err = &domain.MalformedRecordError{Row: d.row, Field: col, Err: err}
	}
}

func (d *rowDecoder) number(col string) float64 {
	s := d.cell(col)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		d.fail(col, fmt.Errorf("not a number: %q", s))
		return 0
	}
	return v
}

// integer accepts spreadsheet-style integral floats such as "2020.0".
func (d *rowDecoder) integer(col string) int {
	s := d.cell(col)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		d.fail(col, fmt.Errorf("not an integer: %q", s))
		return 0
	}
	return int(f)
}

func (d *rowDecoder) optionalFloat(col string) *float64 {
	if d.cell(col) == "" {
		return nil
	}
	v := d.number(col)
	return &v
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// hasDerived reports whether any row carries computed indices.
func hasDerived(rows []domain.DailyObservation) bool {
	for i := range rows {
		if rows[i].API != nil || rows[i].FFDI != nil || rows[i].Rating != "" {
			return true
		}
	}
	return false
}

// encodeRow renders a row as text cells in column order.
func encodeRow(row domain.DailyObservation, withDerived bool) []string {
	rec := []string{
		strconv.Itoa(row.Year),
		strconv.Itoa(row.Month),
		strconv.Itoa(row.Day),
		formatFloat(row.MaxTemp),
		formatFloat(row.Rainfall),
		formatFloat(row.WindSpeed),
		formatFloat(row.Humidity),
		formatFloat(row.Lat),
		formatFloat(row.Lon),
		row.Station,
		row.State,
	}
	if withDerived {
		rec = append(rec, formatOptional(row.API), formatOptional(row.FFDI), string(row.Rating))
	}
	return rec
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
