package model

import "context"

// MetricsStore is the shared aggregate state fed by ingestion and read by exporters.
type MetricsStore interface {
	// Record counts one observation and registers its flow on first sight.
	Record(ctx context.Context, obs Observation)

	// Snapshot returns a consistent copy of the current state.
	Snapshot() Snapshot
}

// Resolver maps an IP address to a best-effort hostname. An empty string
// means no name was found.
type Resolver interface {
	Resolve(ctx context.Context, ip string) string
}
