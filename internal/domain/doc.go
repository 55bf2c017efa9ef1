// Package domain models per-station daily weather tables and the fire-danger
// indices derived from them.
//
// # Station Tables
//
// Each weather station owns one table of daily observations ordered by date
// ascending. Every row carries the station identity (Station, state, Lat, Lon),
// which is identical for all rows of a table. Historical rows come from the
// Bureau of Meteorology exports; forecast rows are appended by the forecast
// batch, seven per run (provider days 1..7, day 0 being "today").
//
// Units:
//
//	Max_Temp    degrees Celsius
//	Rainfall    millimetres (0 when the provider omits rain for a day)
//	Wind_Speed  km/h (the provider reports m/s; multiplied by 3.6 on ingest)
//	Humidity    percent, 0–100
//
// # Antecedent Precipitation Index
//
// API is a decayed running total of rainfall with a daily decay constant of
// k = 0.85:
//
//	API[0] = P[0]
//	API[t] = P[t] + k * API[t-1]
//
// Equivalently API[t] = Σ k^(t-j) P[j]. The recurrence depends on the previous
// row, so a table must be in date order before it is computed. See [Scan].
//
// # Forest Fire Danger Index
//
// The McArthur FFDI variant used here substitutes API for the drought factor:
//
//	FFDI = 1.275 * API^0.987 * exp(T/29.5858 - H/28.9855 + V/42.735)
//
// where T is max temperature, H relative humidity and V wind speed.
// Reference: Predicting Forest Fire Danger Using Improved Model Derived Soil
// Moisture and Antecedent Precipitation (Dharssi et al.).
//
// Rating bands (lower bound inclusive):
//
//	FFDI < 5   Low
//	FFDI < 12  Moderate
//	FFDI < 24  High
//	FFDI < 50  Very High
//	otherwise  Extreme
package domain
