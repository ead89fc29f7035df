package exporter

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/factory"
	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, interval time.Duration, log logrus.FieldLogger) (model.Writer, error) {
		return NewGobWriter(def.Gob.RootPath, interval, log), nil
	})
}

// SummaryData holds the metadata written next to a gob snapshot.
type SummaryData struct {
	TotalPackets          uint64            `json:"total_packets"`
	TotalBytes            uint64            `json:"total_bytes"`
	ProtocolCounts        map[string]uint64 `json:"protocol_counts"`
	TotalConnections      int               `json:"total_connections"`
	UntrackedObservations uint64            `json:"untracked_observations"`
	Timestamp             string            `json:"timestamp"`
}

// GobWriter writes the full snapshot in gob format plus a JSON summary.
type GobWriter struct {
	rootPath string
	interval time.Duration
	log      logrus.FieldLogger
}

// NewGobWriter creates a new writer for binary snapshots.
func NewGobWriter(rootPath string, interval time.Duration, log logrus.FieldLogger) *GobWriter {
	if rootPath == "" {
		rootPath = "snapshots"
	}
	return &GobWriter{rootPath: rootPath, interval: interval, log: log}
}

func (w *GobWriter) Name() string { return "gob" }

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write replaces snapshot.gob and summary.json under the root path.
func (w *GobWriter) Write(snapshot model.Snapshot) error {
	snapshotPath := filepath.Join(w.rootPath, model.GobSnapshotFile)
	err := writeFileAtomic(snapshotPath, func(out io.Writer) error {
		return gob.NewEncoder(out).Encode(snapshot)
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot to gob for file '%s': %w", snapshotPath, err)
	}

	summary := SummaryData{
		TotalPackets:          snapshot.TotalPackets,
		TotalBytes:            snapshot.TotalBytes,
		ProtocolCounts:        make(map[string]uint64, len(snapshot.ProtocolCounts)),
		TotalConnections:      len(snapshot.Connections),
		UntrackedObservations: snapshot.UntrackedObservations,
		Timestamp:             snapshot.Timestamp.UTC().Format(time.RFC3339),
	}
	for proto, n := range snapshot.ProtocolCounts {
		summary.ProtocolCounts[string(proto)] = n
	}
	summaryPath := filepath.Join(w.rootPath, model.GobSummaryFile)
	err = writeFileAtomic(summaryPath, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	})
	if err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	w.log.WithField("path", snapshotPath).Debug("Gob snapshot written")
	return nil
}

func (w *GobWriter) Close() error { return nil }
