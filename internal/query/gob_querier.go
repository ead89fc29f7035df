package query

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"Go2NetMonitor/internal/model"
)

// GobQuerier reads the snapshot written by the gob writer.
type GobQuerier struct {
	path string
}

// NewGobQuerier creates a querier over the gob writer's root path.
func NewGobQuerier(rootPath string) *GobQuerier {
	if rootPath == "" {
		rootPath = "snapshots"
	}
	return &GobQuerier{path: filepath.Join(rootPath, model.GobSnapshotFile)}
}

func (q *GobQuerier) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snapshot model.Snapshot
	f, err := os.Open(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot, notAvailable("Snapshot")
	}
	if err != nil {
		return snapshot, err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("failed to decode gob snapshot '%s': %w", q.path, err)
	}
	return snapshot, nil
}

func (q *GobQuerier) TotalPackets(ctx context.Context) (uint64, error) {
	s, err := q.Snapshot(ctx)
	return s.TotalPackets, err
}

func (q *GobQuerier) ProtocolCounts(ctx context.Context) (map[model.Protocol]uint64, error) {
	s, err := q.Snapshot(ctx)
	return s.ProtocolCounts, err
}

func (q *GobQuerier) Connections(ctx context.Context) ([]model.Connection, error) {
	s, err := q.Snapshot(ctx)
	return s.Connections, err
}

func (q *GobQuerier) Close() error { return nil }
