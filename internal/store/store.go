// Package store persists COT position series so the dashboard can show
// the last known good data when the CFTC is unreachable.
package store

import (
	"context"

	"macrodesk/internal/cot"
)

type Store interface {
	UpsertPositions(ctx context.Context, records []cot.PositionRecord) error
	LoadSeries(ctx context.Context, instrumentID string, limit int) (cot.PositionSeries, error)
	Close() error
}

// NopStore is used when persistence is disabled in the configuration.
type NopStore struct{}

func (s *NopStore) UpsertPositions(ctx context.Context, records []cot.PositionRecord) error {
	_ = ctx
	_ = records
	return nil
}

func (s *NopStore) LoadSeries(ctx context.Context, instrumentID string, limit int) (cot.PositionSeries, error) {
	_ = ctx
	_ = instrumentID
	_ = limit
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
