package model

import "time"

// Writer defines a generic interface for exporting snapshots to an external sink.
type Writer interface {
	// Name identifies the writer in logs.
	Name() string

	// Write renders a full snapshot, replacing whatever the sink held before.
	Write(snapshot Snapshot) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration

	// Close releases connections or handles held by the writer.
	Close() error
}
