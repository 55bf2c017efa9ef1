package domain

import (
	"fmt"
	"time"
)

// Rating is the categorical severity band of an FFDI value.
type Rating string

const (
	RatingLow      Rating = "Low"
	RatingModerate Rating = "Moderate"
	RatingHigh     Rating = "High"
	RatingVeryHigh Rating = "Very High"
	RatingExtreme  Rating = "Extreme"
)

// Ratings lists every band in ascending severity.
var Ratings = []Rating{RatingLow, RatingModerate, RatingHigh, RatingVeryHigh, RatingExtreme}

// ParseRating converts a persisted FFDI_Rate cell back to a Rating.
func ParseRating(s string) (Rating, error) {
	for _, r := range Ratings {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown FFDI rating %q", s)
}

// Date is a calendar day with no time-of-day or zone.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Valid reports whether the components name a real calendar day.
func (d Date) Valid() bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	t := d.Time()
	return t.Year() == d.Year && int(t.Month()) == d.Month && t.Day() == d.Day
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Identity holds the fields shared by every row of a station table.
type Identity struct {
	Station string  `json:"station"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// DailyObservation is one station-day: the measured (or forecast) weather plus
// the derived indices once computed.
type DailyObservation struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`

	MaxTemp   float64 `json:"max_temp"`   // °C
	Rainfall  float64 `json:"rainfall"`   // mm
	WindSpeed float64 `json:"wind_speed"` // km/h
	Humidity  float64 `json:"humidity"`   // %

	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Station string  `json:"station"`
	State   string  `json:"state"`

	// Derived columns; nil/empty until the corresponding calculator runs.
	API    *float64 `json:"api,omitempty"`
	FFDI   *float64 `json:"ffdi,omitempty"`
	Rating Rating   `json:"ffdi_rate,omitempty"`
}

// Date returns the row's calendar day.
func (o DailyObservation) Date() Date {
	return Date{Year: o.Year, Month: o.Month, Day: o.Day}
}

// Identity returns the row's station identity fields.
func (o DailyObservation) Identity() Identity {
	return Identity{Station: o.Station, State: o.State, Lat: o.Lat, Lon: o.Lon}
}

func (o *DailyObservation) stamp(id Identity) {
	o.Station = id.Station
	o.State = id.State
	o.Lat = id.Lat
	o.Lon = id.Lon
}

func (o *DailyObservation) clearDerived() {
	o.API = nil
	o.FFDI = nil
	o.Rating = ""
}
