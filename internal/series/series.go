// Package series persists one daily time series per instrument as a Parquet
// file. Dates within a file are unique and strictly ascending; the store only
// ever replaces a file wholesale (write-temp-then-rename), so an interrupted
// run can never leave a partially-written series behind.
package series

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

// Row is the on-disk Parquet schema, one row per trading day. Column order
// matches the canonical schema. Dates are ISO strings and codes are stored as
// strings so zero-padding survives every merge.
type Row struct {
	Date         string  `parquet:"date"`
	Code         string  `parquet:"code"`
	Name         string  `parquet:"name"`
	Open         float64 `parquet:"open"`
	Close        float64 `parquet:"close"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Volume       int64   `parquet:"volume"`
	Amount       float64 `parquet:"amount"`
	Amplitude    float64 `parquet:"amplitude"`
	PctChange    float64 `parquet:"pct_change"`
	Change       float64 `parquet:"change"`
	TurnoverRate float64 `parquet:"turnover_rate"`
}

// Store reads and writes per-instrument series files.
// Layout: <DataDir>/CN/daily/<code>.parquet
type Store struct {
	DataDir string
}

// NewStore creates a Store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{DataDir: dataDir}
}

// Path returns the series file path for code.
func (s *Store) Path(code string) string {
	return filepath.Join(s.DataDir, string(domain.MarketCN), "daily", code+".parquet")
}

// Exists reports whether a persisted series exists for code.
func (s *Store) Exists(code string) bool {
	_, err := os.Stat(s.Path(code))
	return err == nil
}

// Read loads the entire series for code, sorted ascending by date.
func (s *Store) Read(code string) ([]domain.DailyRecord, error) {
	rows, err := parquet.ReadFile[Row](s.Path(code))
	if err != nil {
		return nil, fmt.Errorf("reading series %s: %w", code, err)
	}

	records := make([]domain.DailyRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", code, err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

// Write replaces the series for code with records. The write is atomic: the
// new file is produced under a unique temp name and renamed over the old one.
func (s *Store) Write(code string, records []domain.DailyRecord) error {
	path := s.Path(code)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating series dir: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, fromRecord(rec))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	tmp := fmt.Sprintf("%s.tmp.%d.%s", path, os.Getpid(), uuid.NewString()[:8])
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing series %s: %w", code, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing series %s: %w", code, err)
	}
	return nil
}

// LastDate returns the date of the final row of the series without loading
// the whole file: only the last row of the last row group is materialized.
// ok is false when the series exists but is empty.
func (s *Store) LastDate(code string) (last time.Time, ok bool, err error) {
	f, err := os.Open(s.Path(code))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("opening series %s: %w", code, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return time.Time{}, false, err
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return time.Time{}, false, fmt.Errorf("opening series %s: %w", code, err)
	}
	if pf.NumRows() == 0 {
		return time.Time{}, false, nil
	}

	groups := pf.RowGroups()
	rg := groups[len(groups)-1]
	reader := parquet.NewGenericRowGroupReader[Row](rg)
	defer reader.Close()

	if err := reader.SeekToRow(rg.NumRows() - 1); err != nil {
		return time.Time{}, false, fmt.Errorf("seeking series %s: %w", code, err)
	}
	buf := make([]Row, 1)
	n, err := reader.Read(buf)
	if n == 0 {
		if err != nil {
			return time.Time{}, false, fmt.Errorf("reading series tail %s: %w", code, err)
		}
		return time.Time{}, false, nil
	}

	d, err := util.ParseISO(buf[0].Date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("series %s tail: %w", code, err)
	}
	return d, true, nil
}

// List returns the codes of all instruments that have a series on disk.
func (s *Store) List() ([]string, error) {
	dir := filepath.Join(s.DataDir, string(domain.MarketCN), "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var codes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(codes)
	return codes, nil
}

func fromRecord(rec domain.DailyRecord) Row {
	return Row{
		Date:         util.ISO(rec.Date),
		Code:         rec.Code,
		Name:         rec.Name,
		Open:         rec.Open,
		Close:        rec.Close,
		High:         rec.High,
		Low:          rec.Low,
		Volume:       rec.Volume,
		Amount:       rec.Amount,
		Amplitude:    rec.Amplitude,
		PctChange:    rec.PctChange,
		Change:       rec.Change,
		TurnoverRate: rec.TurnoverRate,
	}
}

func (r Row) toRecord() (domain.DailyRecord, error) {
	d, err := util.ParseISO(r.Date)
	if err != nil {
		return domain.DailyRecord{}, err
	}
	return domain.DailyRecord{
		Date:         d,
		Code:         r.Code,
		Name:         r.Name,
		Open:         r.Open,
		Close:        r.Close,
		High:         r.High,
		Low:          r.Low,
		Volume:       r.Volume,
		Amount:       r.Amount,
		Amplitude:    r.Amplitude,
		PctChange:    r.PctChange,
		Change:       r.Change,
		TurnoverRate: r.TurnoverRate,
	}, nil
}
