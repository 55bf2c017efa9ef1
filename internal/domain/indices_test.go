package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexTolerance = 0.01

// Five consecutive days from a Victorian station, with hand-checked indices.
var (
	fixtureMaxTemp   = []float64{12.5, 20.7, 12.4, 11.1, 11.5}
	fixtureRainfall  = []float64{1, 0, 2.8, 4.4, 25.6}
	fixtureWindSpeed = []float64{116.64, 90.72, 142.56, 64.8, 116.64}
	fixtureHumidity  = []float64{72, 72, 67, 59, 63}
	fixtureAPI       = []float64{1.00, 0.85, 3.52, 7.39, 31.89}
	fixtureFFDI      = []float64{2.49, 1.52, 18.71, 7.95, 99.95}
)

func fixtureTable(t *testing.T) *StationTable {
	t.Helper()
	rows := make([]DailyObservation, len(fixtureRainfall))
	for i := range rows {
		rows[i] = DailyObservation{
			Year: 2020, Month: 8, Day: 18 + i,
			MaxTemp:   fixtureMaxTemp[i],
			Rainfall:  fixtureRainfall[i],
			WindSpeed: fixtureWindSpeed[i],
			Humidity:  fixtureHumidity[i],
			Lat:       -37.83, Lon: 144.98,
			Station: "86282", State: "VIC",
		}
	}
	table := NewStationTable("melbourne.csv", rows)
	require.NoError(t, table.Validate())
	return table
}

func TestAntecedentPrecipitation_Recurrence(t *testing.T) {
	cases := [][]float64{
		{0},
		{3.2},
		{0, 0, 0},
		{10, 0, 0, 0, 0},
		{1, 2, 3, 4, 5, 6},
		{0.2, 14.8, 0, 0, 33.1, 0.4, 0},
	}

	for _, rainfall := range cases {
		api := AntecedentPrecipitation(rainfall)
		require.Len(t, api, len(rainfall))
		assert.Equal(t, rainfall[0], api[0])
		for i := 1; i < len(rainfall); i++ {
			assert.Equal(t, rainfall[i]+APIDecay*api[i-1], api[i], "row %d of %v", i, rainfall)
		}
	}
}

func TestAntecedentPrecipitation_MatchesClosedForm(t *testing.T) {
	rainfall := []float64{4, 0, 1.5, 0, 0, 12, 0.6}
	api := AntecedentPrecipitation(rainfall)

	for i := range rainfall {
		var want float64
		for j := 0; j <= i; j++ {
			want += math.Pow(APIDecay, float64(i-j)) * rainfall[j]
		}
		assert.InDelta(t, want, api[i], 1e-9)
	}
}

func TestAntecedentPrecipitation_Empty(t *testing.T) {
	assert.Empty(t, AntecedentPrecipitation(nil))
	assert.Empty(t, AntecedentPrecipitation([]float64{}))
}

func TestScan_KeepsIntermediates(t *testing.T) {
	got := Scan([]int{1, 2, 3, 4}, 0, func(acc, x int) int { return acc + x })
	assert.Equal(t, []int{1, 3, 6, 10}, got)
}

func TestComputeAPI_Fixture(t *testing.T) {
	table := fixtureTable(t)
	table.ComputeAPI()

	for i, row := range table.Rows {
		require.NotNil(t, row.API, "row %d", i)
		assert.InDelta(t, fixtureAPI[i], *row.API, indexTolerance, "row %d", i)
	}
}

func TestComputeFFDI_Fixture(t *testing.T) {
	table := fixtureTable(t)
	table.ComputeAPI()
	require.NoError(t, table.ComputeFFDI())

	wantRatings := []Rating{RatingLow, RatingLow, RatingHigh, RatingModerate, RatingExtreme}
	for i, row := range table.Rows {
		require.NotNil(t, row.FFDI, "row %d", i)
		assert.InDelta(t, fixtureFFDI[i], *row.FFDI, indexTolerance, "row %d", i)
		assert.Equal(t, wantRatings[i], row.Rating, "row %d", i)
	}
}

func TestComputeFFDI_Idempotent(t *testing.T) {
	table := fixtureTable(t)
	table.ComputeAPI()
	require.NoError(t, table.ComputeFFDI())

	first := make([]float64, table.Len())
	firstRatings := make([]Rating, table.Len())
	for i, row := range table.Rows {
		first[i] = *row.FFDI
		firstRatings[i] = row.Rating
	}

	require.NoError(t, table.ComputeFFDI())
	for i, row := range table.Rows {
		assert.Equal(t, first[i], *row.FFDI)
		assert.Equal(t, firstRatings[i], row.Rating)
	}
}

func TestComputeFFDI_RequiresAPI(t *testing.T) {
	table := fixtureTable(t)
	table.ComputeAPI()
	table.Rows[3].API = nil

	err := table.ComputeFFDI()
	require.Error(t, err)

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, 3, pre.Row)
	for i, row := range table.Rows {
		assert.Nil(t, row.FFDI, "row %d must stay untouched", i)
		assert.Empty(t, row.Rating)
	}
}

func TestComputeIndices_EmptyTable(t *testing.T) {
	table := NewStationTable("empty.csv", nil)
	table.ComputeAPI()
	require.NoError(t, table.ComputeFFDI())
	assert.Equal(t, 0, table.Len())
}

func TestFireDangerIndex_ZeroAPI(t *testing.T) {
	assert.Equal(t, 0.0, FireDangerIndex(0, 40, 5, 60))
}

func TestRateFFDI_Boundaries(t *testing.T) {
	cases := []struct {
		ffdi float64
		want Rating
	}{
		{0, RatingLow},
		{math.Nextafter(5, 0), RatingLow},
		{5, RatingModerate},
		{math.Nextafter(12, 0), RatingModerate},
		{12, RatingHigh},
		{math.Nextafter(24, 0), RatingHigh},
		{24, RatingVeryHigh},
		{math.Nextafter(50, 0), RatingVeryHigh},
		{50, RatingExtreme},
		{180, RatingExtreme},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, RateFFDI(tc.ffdi), "ffdi=%v", tc.ffdi)
	}
}

func TestRating_Severity(t *testing.T) {
	assert.Equal(t, 0, RatingLow.Severity())
	assert.Equal(t, 4, RatingExtreme.Severity())
	assert.Greater(t, RatingVeryHigh.Severity(), RatingHigh.Severity())
	assert.Equal(t, -1, Rating("Catastrophic").Severity())
}

func TestParseRating(t *testing.T) {
	r, err := ParseRating("Very High")
	require.NoError(t, err)
	assert.Equal(t, RatingVeryHigh, r)

	_, err = ParseRating("very high")
	assert.Error(t, err)
}
