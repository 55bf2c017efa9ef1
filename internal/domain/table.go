package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// StationTable is the date-ordered daily history of one station. It owns its
// rows; the calculators and AppendForecast mutate them in place.
type StationTable struct {
	// ID is the store's opaque handle for the table (e.g. its file name).
	ID   string
	Rows []DailyObservation
}

// NewStationTable wraps rows loaded under id.
func NewStationTable(id string, rows []DailyObservation) *StationTable {
	return &StationTable{ID: id, Rows: rows}
}

// Len returns the number of rows.
func (t *StationTable) Len() int { return len(t.Rows) }

// Identity returns the station identity carried by the first row. The second
// result is false for an empty table.
func (t *StationTable) Identity() (Identity, bool) {
	if len(t.Rows) == 0 {
		return Identity{}, false
	}
	return t.Rows[0].Identity(), true
}

// LastDate returns the date of the final row.
func (t *StationTable) LastDate() (Date, bool) {
	if len(t.Rows) == 0 {
		return Date{}, false
	}
	return t.Rows[len(t.Rows)-1].Date(), true
}

// MissingDays returns the number of days after the last row up to and
// including ref's day. A forecast covers only the days after ref, so these
// days stay absent from the table.
func (t *StationTable) MissingDays(ref time.Time) int {
	last, ok := t.LastDate()
	if !ok {
		return 0
	}
	n := int(DateOf(ref).Time().Sub(last.Time()) / (24 * time.Hour))
	return max(n, 0)
}

// Validate checks the invariants the calculators rely on: real calendar dates
// in strictly ascending order, physically sensible measurements, and a single
// non-empty station identity across all rows.
func (t *StationTable) Validate() error {
	if len(t.Rows) == 0 {
		return nil
	}

	id := t.Rows[0].Identity()
	if id.Station == "" {
		return &MalformedRecordError{Row: 0, Field: "Station", Err: errors.New("empty")}
	}
	if id.State == "" {
		return &MalformedRecordError{Row: 0, Field: "state", Err: errors.New("empty")}
	}

	var prev Date
	for i := range t.Rows {
		row := &t.Rows[i]
		if err := validateMeasurements(i, row); err != nil {
			return err
		}
		if row.Identity() != id {
			return &MalformedRecordError{Row: i, Field: "Station", Err: fmt.Errorf("identity %+v differs from %+v", row.Identity(), id)}
		}
		d := row.Date()
		if !d.Valid() {
			return &MalformedRecordError{Row: i, Field: "Day", Err: fmt.Errorf("invalid date %s", d)}
		}
		if i > 0 && !prev.Before(d) {
			return &MalformedRecordError{Row: i, Field: "Day", Err: fmt.Errorf("date %s not after %s", d, prev)}
		}
		prev = d
	}
	return nil
}

func validateMeasurements(i int, row *DailyObservation) error {
	checks := []struct {
		field string
		value float64
		ok    bool
	}{
		{"Max_Temp", row.MaxTemp, true},
		{"Rainfall", row.Rainfall, row.Rainfall >= 0},
		{"Wind_Speed", row.WindSpeed, row.WindSpeed >= 0},
		{"Humidity", row.Humidity, row.Humidity >= 0 && row.Humidity <= 100},
		{"Lat", row.Lat, true},
		{"Lon", row.Lon, true},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &MalformedRecordError{Row: i, Field: c.field, Err: errors.New("not a finite number")}
		}
		if !c.ok {
			return &MalformedRecordError{Row: i, Field: c.field, Err: fmt.Errorf("value %g out of range", c.value)}
		}
	}
	return nil
}

// AppendForecast appends forecast rows in order, stamping each with the
// table's station identity and clearing any derived columns. Rows dated on or
// before the table's last row are skipped so repeated runs never duplicate a
// day. The table is left unchanged if any row has an invalid date. It returns
// the number of rows appended.
func (t *StationTable) AppendForecast(rows []DailyObservation) (int, error) {
	id, ok := t.Identity()
	if !ok {
		return 0, &MalformedRecordError{Row: -1, Field: "Station", Err: errors.New("empty table has no station identity")}
	}

	last, _ := t.LastDate()
	var fresh []DailyObservation
	for _, row := range rows {
		d := row.Date()
		if !d.Valid() {
			return 0, &MalformedRecordError{Row: len(t.Rows) + len(fresh), Field: "Day", Err: fmt.Errorf("invalid forecast date %s", d)}
		}
		if !last.Before(d) {
			continue
		}
		row.stamp(id)
		row.clearDerived()
		fresh = append(fresh, row)
		last = d
	}
	t.Rows = append(t.Rows, fresh...)
	return len(fresh), nil
}

// ComputeAPI overwrites the API column with the antecedent precipitation index
// of the table's rainfall series.
func (t *StationTable) ComputeAPI() {
	rainfall := make([]float64, len(t.Rows))
	for i := range t.Rows {
		rainfall[i] = t.Rows[i].Rainfall
	}
	for i, v := range AntecedentPrecipitation(rainfall) {
		t.Rows[i].API = &v
	}
}

// ComputeFFDI overwrites the FFDI and FFDI_Rate columns. Every row must
// already carry an API value; otherwise a *PreconditionError is returned and
// no row is modified.
func (t *StationTable) ComputeFFDI() error {
	for i := range t.Rows {
		if t.Rows[i].API == nil {
			return &PreconditionError{Row: i}
		}
	}
	for i := range t.Rows {
		row := &t.Rows[i]
		ffdi := FireDangerIndex(*row.API, row.MaxTemp, row.Humidity, row.WindSpeed)
		row.FFDI = &ffdi
		row.Rating = RateFFDI(ffdi)
	}
	return nil
}
