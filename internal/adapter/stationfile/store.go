package stationfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	extCSV  = ".csv"
	extXLSX = ".xlsx"
)

// Store reads and writes station tables kept as one CSV or XLSX file per
// station in a single directory. Table IDs are file names.
// It implements pipeline.StationStore.
type Store struct {
	dir string
}

// NewStore creates a Store over dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the dataset directory.
func (s *Store) Dir() string { return s.dir }

// List returns the station table file names in lexical order. Files with
// other extensions and hidden files are ignored.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list dataset %s: %w", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case extCSV, extXLSX:
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Load reads and validates one station table.
func (s *Store) Load(ctx context.Context, id string) (*domain.StationTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, id)

	var records [][]string
	var err error
	if isExcel(id) {
		records, err = readXLSX(path)
	} else {
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	rows, err := decodeRows(records, false)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	table := domain.NewStationTable(id, rows)
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return table, nil
}

// Save overwrites the table's file in its original format. The file is
// replaced atomically, so a failed save leaves the previous contents.
func (s *Store) Save(ctx context.Context, table *domain.StationTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, table.ID)
	withDerived := hasDerived(table.Rows)

	var err error
	if isExcel(table.ID) {
		err = writeAtomic(path, func(w io.Writer) error { return writeXLSX(w, table.Rows, withDerived) })
	} else {
		err = writeAtomic(path, func(w io.Writer) error { return writeCSV(w, table.Rows, withDerived) })
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", table.ID, err)
	}
	return nil
}

func isExcel(name string) bool {
	return strings.EqualFold(filepath.Ext(name), extXLSX)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, &domain.MalformedRecordError{Row: -1, Field: "csv", Err: err}
	}
	return records, nil
}

func writeCSV(w io.Writer, rows []domain.DailyObservation, withDerived bool) error {
	cw := csv.NewWriter(w)
	header := BaseColumns
	if withDerived {
		header = PredictionColumns()
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(encodeRow(rows[i], withDerived)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readXLSX returns the raw cell values of the workbook's first sheet.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &domain.MalformedRecordError{Row: -1, Field: "sheet", Err: fmt.Errorf("workbook has no sheets")}
	}
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func writeXLSX(w io.Writer, rows []domain.DailyObservation, withDerived bool) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	header := BaseColumns
	if withDerived {
		header = PredictionColumns()
	}
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return err
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := xlsxRow(rows[i], withDerived)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// xlsxRow keeps numbers numeric so spreadsheets can chart them.
func xlsxRow(row domain.DailyObservation, withDerived bool) []any {
	values := []any{
		row.Year, row.Month, row.Day,
		row.MaxTemp, row.Rainfall, row.WindSpeed, row.Humidity,
		row.Lat, row.Lon, row.Station, row.State,
	}
	if withDerived {
		values = append(values, optionalCell(row.API), optionalCell(row.FFDI), nil)
		if row.Rating != "" {
			values[len(values)-1] = string(row.Rating)
		}
	}
	return values
}

func optionalCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// newFileMode applies to files that did not exist before a save.
const newFileMode os.FileMode = 0o644

// writeAtomic writes to a temporary file next to path and renames it over
// path once fully written. An existing file keeps its permission bits.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	mode := newFileMode
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
