package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"macrodesk/internal/cot"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertPositions(ctx context.Context, records []cot.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cot_positions (instrument_id, report_date, net_position, stored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instrument_id, report_date)
		DO UPDATE SET
			net_position = excluded.net_position,
			stored_at = excluded.stored_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range records {
		record := records[i]
		_, err = stmt.ExecContext(
			ctx,
			record.InstrumentID,
			record.ReportDate.Format(dateLayout),
			record.NetPosition,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// LoadSeries returns up to limit of the most recent stored positions for
// an instrument, in ascending report-date order. limit <= 0 means all.
func (s *Store) LoadSeries(ctx context.Context, instrumentID string, limit int) (cot.PositionSeries, error) {
	query := `
		SELECT report_date, net_position
		FROM cot_positions
		WHERE instrument_id = ?
		ORDER BY report_date DESC
	`
	args := []any{instrumentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series cot.PositionSeries
	for rows.Next() {
		var (
			dateStr string
			net     int64
		)
		if err := rows.Scan(&dateStr, &net); err != nil {
			return nil, err
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: bad report_date %q: %w", dateStr, err)
		}
		series = append(series, cot.PositionRecord{
			InstrumentID: instrumentID,
			ReportDate:   date,
			NetPosition:  net,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows came newest-first for the LIMIT; flip to ascending.
	for i, j := 0, len(series)-1; i < j; i, j = i+1, j-1 {
		series[i], series[j] = series[j], series[i]
	}
	return series, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cot_positions (
			instrument_id TEXT NOT NULL,
			report_date TEXT NOT NULL,
			net_position INTEGER NOT NULL,
			stored_at TEXT NOT NULL,
			PRIMARY KEY (instrument_id, report_date)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
