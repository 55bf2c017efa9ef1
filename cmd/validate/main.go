// Command validate performs integrity checks on a consolidated prediction CSV
// produced by cmd/predict. It verifies the schema, recomputes the antecedent
// precipitation index per station run, recomputes FFDI, checks every rating
// band, and optionally cross-checks row counts against the station tables.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -predictions dataset/output/bushfire_prediction.csv \
//	  -dataset-dir dataset/forecasted
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/fire-danger-etl/internal/adapter/stationfile"
	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	"github.com/fatih/color"
)

// relTolerance absorbs float formatting round trips.
const relTolerance = 1e-9

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	predictions := flag.String("predictions", "", "path to the consolidated prediction CSV")
	datasetDir := flag.String("dataset-dir", "", "optional station table directory to cross-check row counts")
	noColor := flag.Bool("no-color", false, "disable colored output")
	flag.Parse()

	if *predictions == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *noColor {
		color.NoColor = true
	}

	if code := run(*predictions, *datasetDir, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(predictionsPath, datasetDir string, out io.Writer) int {
	fmt.Fprintln(out, "=== Fire Danger Prediction Validation ===")
	fmt.Fprintln(out)

	rows, err := stationfile.ReadPredictions(predictionsPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSchema(rows),
		validateAPI(rows),
		validateFFDI(rows),
		validateRatings(rows),
	}
	if datasetDir != "" {
		phases = append(phases, validateDatasetParity(rows, stationfile.NewStore(datasetDir)))
	}

	allPassed := true
	for _, p := range phases {
		status := passColor.Sprint("PASS")
		if !p.passed() {
			status = failColor.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d across %d station runs\n", len(rows), len(stationRuns(rows)))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// stationRun is a maximal block of consecutive rows sharing a station name.
type stationRun struct {
	station    string
	start, end int // rows[start:end]
}

func stationRuns(rows []domain.DailyObservation) []stationRun {
	var runs []stationRun
	for i := range rows {
		if len(runs) > 0 && runs[len(runs)-1].station == rows[i].Station {
			runs[len(runs)-1].end = i + 1
			continue
		}
		runs = append(runs, stationRun{station: rows[i].Station, start: i, end: i + 1})
	}
	return runs
}

// ── Phase 1: Schema ──

func validateSchema(rows []domain.DailyObservation) *phase {
	p := &phase{name: "Phase 1: Schema (columns and values)"}
	for i := range rows {
		r := &rows[i]
		line := i + 2
		if !r.Date().Valid() {
			p.errorf("line %d: invalid date %s", line, r.Date())
		}
		if r.Station == "" {
			p.errorf("line %d: Station is empty", line)
		}
		if r.Rainfall < 0 {
			p.errorf("line %d: Rainfall %g is negative", line, r.Rainfall)
		}
		if r.Humidity < 0 || r.Humidity > 100 {
			p.errorf("line %d: Humidity %g outside [0, 100]", line, r.Humidity)
		}
		if r.API == nil {
			p.errorf("line %d: API is empty", line)
		}
		if r.FFDI == nil {
			p.errorf("line %d: FFDI is empty", line)
		}
		if r.Rating == "" {
			p.errorf("line %d: FFDI_Rate is empty", line)
		}
	}
	return p
}

// ── Phase 2: API recurrence ──
// Each station run restarts the recurrence at its first row.

func validateAPI(rows []domain.DailyObservation) *phase {
	p := &phase{name: "Phase 2: API recurrence (per station)"}
	for _, run := range stationRuns(rows) {
		block := rows[run.start:run.end]
		rainfall := make([]float64, len(block))
		for i := range block {
			rainfall[i] = block[i].Rainfall
			if i > 0 && !block[i-1].Date().Before(block[i].Date()) {
				p.errorf("%s line %d: date %s does not follow %s", run.station, run.start+i+2, block[i].Date(), block[i-1].Date())
			}
		}
		for i, want := range domain.AntecedentPrecipitation(rainfall) {
			got := block[i].API
			if got == nil {
				continue
			}
			if !approxEqual(*got, want) {
				p.errorf("%s line %d: API expected %g, got %g", run.station, run.start+i+2, want, *got)
			}
		}
	}
	return p
}

// ── Phase 3: FFDI ──

func validateFFDI(rows []domain.DailyObservation) *phase {
	p := &phase{name: "Phase 3: FFDI formula"}
	for i := range rows {
		r := &rows[i]
		if r.API == nil || r.FFDI == nil {
			continue
		}
		want := domain.FireDangerIndex(*r.API, r.MaxTemp, r.Humidity, r.WindSpeed)
		if !approxEqual(*r.FFDI, want) {
			p.errorf("%s line %d: FFDI expected %g, got %g", r.Station, i+2, want, *r.FFDI)
		}
	}
	return p
}

// ── Phase 4: Rating bands ──

func validateRatings(rows []domain.DailyObservation) *phase {
	p := &phase{name: "Phase 4: Rating bands"}
	for i := range rows {
		r := &rows[i]
		if r.FFDI == nil || r.Rating == "" {
			continue
		}
		if want := domain.RateFFDI(*r.FFDI); r.Rating != want {
			p.errorf("%s line %d: FFDI %g rated %q, expected %q", r.Station, i+2, *r.FFDI, r.Rating, want)
		}
	}
	return p
}

// ── Phase 5: Dataset parity ──

func validateDatasetParity(rows []domain.DailyObservation, store *stationfile.Store) *phase {
	p := &phase{name: "Phase 5: Dataset parity (station tables)"}
	ctx := context.Background()

	ids, err := store.List(ctx)
	if err != nil {
		p.errorf("list %s: %v", store.Dir(), err)
		return p
	}

	predicted := map[string]int{}
	for i := range rows {
		predicted[rows[i].Station]++
	}

	expected := map[string]int{}
	for _, id := range ids {
		table, err := store.Load(ctx, id)
		if err != nil {
			// Unreadable tables are skipped by predict too.
			continue
		}
		if ident, ok := table.Identity(); ok {
			expected[ident.Station] += table.Len()
		}
	}

	for station, n := range expected {
		if got := predicted[station]; got != n {
			p.errorf("%s: station tables have %d rows, predictions have %d", station, n, got)
		}
	}
	for station := range predicted {
		if _, ok := expected[station]; !ok {
			p.errorf("%s: predicted but no station table found", station)
		}
	}
	return p
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= relTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
