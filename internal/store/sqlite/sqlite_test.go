package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"macrodesk/internal/cot"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("want error for empty path")
	}
}

func TestUpsertAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	records := []cot.PositionRecord{
		{InstrumentID: "GOLD", ReportDate: date("2025-11-25"), NetPosition: 9000},
		{InstrumentID: "GOLD", ReportDate: date("2025-12-02"), NetPosition: 17000},
		{InstrumentID: "EURO", ReportDate: date("2025-12-02"), NetPosition: -42000},
	}
	if err := s.UpsertPositions(ctx, records); err != nil {
		t.Fatalf("UpsertPositions: %v", err)
	}

	series, err := s.LoadSeries(ctx, "GOLD", 0)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("got %d records, want 2", len(series))
	}
	// Ascending report-date order.
	if !series[0].ReportDate.Before(series[1].ReportDate) {
		t.Errorf("series not ascending: %v, %v", series[0].ReportDate, series[1].ReportDate)
	}
	if series[1].NetPosition != 17000 {
		t.Errorf("latest net = %d, want 17000", series[1].NetPosition)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []cot.PositionRecord{{InstrumentID: "GOLD", ReportDate: date("2025-12-02"), NetPosition: 100}}
	if err := s.UpsertPositions(ctx, first); err != nil {
		t.Fatalf("UpsertPositions: %v", err)
	}
	second := []cot.PositionRecord{{InstrumentID: "GOLD", ReportDate: date("2025-12-02"), NetPosition: 250}}
	if err := s.UpsertPositions(ctx, second); err != nil {
		t.Fatalf("UpsertPositions: %v", err)
	}

	series, err := s.LoadSeries(ctx, "GOLD", 0)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(series) != 1 || series[0].NetPosition != 250 {
		t.Errorf("got %+v, want single record with net 250", series)
	}
}

func TestLoadSeriesLimitKeepsNewest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var records []cot.PositionRecord
	base := date("2025-09-02")
	for i := 0; i < 8; i++ {
		records = append(records, cot.PositionRecord{
			InstrumentID: "GOLD",
			ReportDate:   base.AddDate(0, 0, 7*i),
			NetPosition:  int64(1000 * i),
		})
	}
	if err := s.UpsertPositions(ctx, records); err != nil {
		t.Fatalf("UpsertPositions: %v", err)
	}

	series, err := s.LoadSeries(ctx, "GOLD", 3)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("got %d records, want 3", len(series))
	}
	if !series[0].ReportDate.Equal(records[5].ReportDate) {
		t.Errorf("window start = %v, want %v", series[0].ReportDate, records[5].ReportDate)
	}
	if series[2].NetPosition != 7000 {
		t.Errorf("last net = %d, want 7000", series[2].NetPosition)
	}
}

func TestLoadSeriesUnknownInstrument(t *testing.T) {
	s := testStore(t)
	series, err := s.LoadSeries(context.Background(), "NOPE", 0)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(series) != 0 {
		t.Errorf("got %d records, want none", len(series))
	}
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	s := testStore(t)
	if err := s.UpsertPositions(context.Background(), nil); err != nil {
		t.Fatalf("UpsertPositions(nil): %v", err)
	}
}
