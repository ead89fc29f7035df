// Package query reads exported snapshots back for the HTTP API and the
// terminal dashboard.
package query

import (
	"context"
	"errors"
	"fmt"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/model"
)

// ErrNotAvailable is returned when the requested data has not been exported yet.
var ErrNotAvailable = errors.New("data not available")

// Querier defines the interface for reading exported metrics.
type Querier interface {
	TotalPackets(ctx context.Context) (uint64, error)
	ProtocolCounts(ctx context.Context) (map[model.Protocol]uint64, error)
	Connections(ctx context.Context) ([]model.Connection, error)
	// Snapshot reads all three datasets at once.
	Snapshot(ctx context.Context) (model.Snapshot, error)
	Close() error
}

// New creates the querier for the configured source.
func New(cfg config.QueryConfig) (Querier, error) {
	switch cfg.Source {
	case "", "csv":
		return NewCSVQuerier(cfg.DataDir), nil
	case "gob":
		return NewGobQuerier(cfg.GobPath), nil
	case "clickhouse":
		return NewClickHouseQuerier(cfg.ClickHouse)
	default:
		return nil, fmt.Errorf("unknown query source '%s'", cfg.Source)
	}
}

func notAvailable(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotAvailable)
}
