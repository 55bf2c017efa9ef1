// Command genmock writes deterministic synthetic station tables for local
// runs and test fixtures. Tables are saved through the same store the batch
// commands read, so every third station is written as .xlsx and the rest as
// .csv.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out dataset/forecasted \
//	  -days 60 \
//	  -end 2020-08-21
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/couchcryptid/fire-danger-etl/internal/adapter/stationfile"
	"github.com/couchcryptid/fire-danger-etl/internal/domain"
)

type stationDef struct {
	name  string
	state string
	lat   float64
	lon   float64
	// climate baseline
	meanTemp float64
	rainProb float64
}

var stations = []stationDef{
	{name: "Sydney Airport", state: "NSW", lat: -33.9465, lon: 151.1731, meanTemp: 22, rainProb: 0.30},
	{name: "Dubbo", state: "NSW", lat: -32.2206, lon: 148.5753, meanTemp: 25, rainProb: 0.15},
	{name: "Canberra", state: "ACT", lat: -35.3049, lon: 149.2014, meanTemp: 19, rainProb: 0.20},
	{name: "Melbourne Olympic Park", state: "VIC", lat: -37.8255, lon: 144.9816, meanTemp: 20, rainProb: 0.28},
	{name: "Mildura", state: "VIC", lat: -34.2358, lon: 142.0867, meanTemp: 27, rainProb: 0.10},
	{name: "Adelaide", state: "SA", lat: -34.9211, lon: 138.6216, meanTemp: 24, rainProb: 0.18},
	{name: "Perth", state: "WA", lat: -31.9275, lon: 115.9764, meanTemp: 25, rainProb: 0.16},
	{name: "Hobart", state: "TAS", lat: -42.8897, lon: 147.3278, meanTemp: 16, rainProb: 0.35},
	{name: "Alice Springs", state: "NT", lat: -23.7951, lon: 133.889, meanTemp: 31, rainProb: 0.05},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "dataset directory to write station tables into")
	days := flag.Int("days", 60, "number of daily rows per station")
	end := flag.String("end", "2020-08-21", "date of the last row (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *days < 1 {
		return fmt.Errorf("-days must be positive, got %d", *days)
	}
	last, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}

	tables := generate(stations, last, *days, *seed)

	store := stationfile.NewStore(*out)
	for _, table := range tables {
		if err := store.Save(context.Background(), table); err != nil {
			return err
		}
		log.Printf("%s: %d rows", table.ID, table.Len())
	}
	log.Printf("total: %d stations", len(tables))

	printStats(tables)
	return nil
}

// generate builds one table per station covering days ending at last. The
// same seed always yields the same tables.
func generate(defs []stationDef, last time.Time, days int, seed uint64) []*domain.StationTable {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	first := last.AddDate(0, 0, -(days - 1))

	tables := make([]*domain.StationTable, 0, len(defs))
	for i, def := range defs {
		rows := make([]domain.DailyObservation, days)
		for d := range days {
			date := domain.DateOf(first.AddDate(0, 0, d))
			rows[d] = domain.DailyObservation{
				Year:      date.Year,
				Month:     date.Month,
				Day:       date.Day,
				MaxTemp:   round1(def.meanTemp + rng.NormFloat64()*4),
				Rainfall:  round1(rainfall(rng, def.rainProb)),
				WindSpeed: round1(math.Abs(15 + rng.NormFloat64()*8)),
				Humidity:  round1(clamp(45+rng.NormFloat64()*18, 5, 100)),
				Lat:       def.lat,
				Lon:       def.lon,
				Station:   def.name,
				State:     def.state,
			}
		}
		tables = append(tables, domain.NewStationTable(fileName(def.name, i), rows))
	}
	return tables
}

func fileName(station string, i int) string {
	base := strings.ToLower(strings.ReplaceAll(station, " ", "_"))
	if i%3 == 2 {
		return base + ".xlsx"
	}
	return base + ".csv"
}

// rainfall draws an exponential amount on wet days.
func rainfall(rng *rand.Rand, prob float64) float64 {
	if rng.Float64() >= prob {
		return 0
	}
	return rng.ExpFloat64() * 6
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func clamp(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }

// printStats prints the rating distribution the prediction batch will
// produce, for updating test assertions.
func printStats(tables []*domain.StationTable) {
	counts := map[domain.Rating]int{}
	var peak float64
	var peakStation string
	for _, t := range tables {
		clone := domain.NewStationTable(t.ID, append([]domain.DailyObservation(nil), t.Rows...))
		clone.ComputeAPI()
		if err := clone.ComputeFFDI(); err != nil {
			continue
		}
		for _, row := range clone.Rows {
			counts[row.Rating]++
			if *row.FFDI > peak {
				peak, peakStation = *row.FFDI, row.Station
			}
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	for _, r := range domain.Ratings {
		fmt.Printf("%-10s %d\n", r+":", counts[r])
	}
	fmt.Printf("Peak FFDI: %.2f (%s)\n", peak, peakStation)
}
