package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/factory"
	"Go2NetMonitor/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var createClickHouseTables = []string{`
CREATE TABLE IF NOT EXISTS snapshot_totals (
    RunID                 String,
    Timestamp             DateTime64(3),
    TotalPackets          UInt64,
    TotalBytes            UInt64,
    UntrackedObservations UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, RunID);
`, `
CREATE TABLE IF NOT EXISTS snapshot_protocol_counts (
    RunID       String,
    Timestamp   DateTime64(3),
    Protocol    LowCardinality(String),
    PacketCount UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, Timestamp, Protocol);
`, `
CREATE TABLE IF NOT EXISTS connections (
    RunID     String,
    SrcIP     String,
    SrcPort   UInt16,
    SrcDomain String,
    DstIP     String,
    DstPort   UInt16,
    DstDomain String,
    Protocol  LowCardinality(String),
    FirstSeen DateTime64(3)
) ENGINE = ReplacingMergeTree()
ORDER BY (RunID, SrcIP, SrcPort, DstIP, DstPort);
`}

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration, log logrus.FieldLogger) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, interval, log)
	})
}

// ClickHouseWriter appends every snapshot's totals to history tables and
// keeps the connections table in step with the store. Connection records
// never change once created, so only flows not sent before are inserted.
//
// Every row carries the writer's run id, so readers can keep the rows of
// one monitor process apart from those of earlier or concurrent runs.
type ClickHouseWriter struct {
	conn     driver.Conn
	runID    string
	interval time.Duration
	log      logrus.FieldLogger

	mu   sync.Mutex
	sent map[model.FlowKey]struct{}
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration, log logrus.FieldLogger) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range createClickHouseTables {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	runID := uuid.NewString()
	log = log.WithField("run_id", runID)
	log.Info("Successfully connected to ClickHouse and ensured tables exist.")

	return &ClickHouseWriter{
		conn:     conn,
		runID:    runID,
		interval: interval,
		log:      log,
		sent:     make(map[model.FlowKey]struct{}),
	}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Write inserts the snapshot totals, the protocol counters and any new connections.
func (w *ClickHouseWriter) Write(snapshot model.Snapshot) error {
	ctx := context.Background()

	totals, err := w.conn.PrepareBatch(ctx, "INSERT INTO snapshot_totals")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := totals.Append(totalsRow(w.runID, snapshot)...); err != nil {
		return fmt.Errorf("failed to append totals to batch: %w", err)
	}
	if err := totals.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	if len(snapshot.ProtocolCounts) > 0 {
		protos, err := w.conn.PrepareBatch(ctx, "INSERT INTO snapshot_protocol_counts")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for _, row := range protocolCountRows(w.runID, snapshot) {
			if err := protos.Append(row...); err != nil {
				return fmt.Errorf("failed to append protocol count to batch: %w", err)
			}
		}
		if err := protos.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := unsent(snapshot.Connections, w.sent)
	if len(fresh) == 0 {
		return nil
	}
	conns, err := w.conn.PrepareBatch(ctx, "INSERT INTO connections")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, c := range fresh {
		if err := conns.Append(connectionRow(w.runID, c)...); err != nil {
			return fmt.Errorf("failed to append connection to batch: %w", err)
		}
	}
	if err := conns.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	for _, c := range fresh {
		w.sent[c.Key()] = struct{}{}
	}

	w.log.WithField("connections", len(fresh)).Debug("Wrote new connections to ClickHouse")
	return nil
}

// snapshotTime is the snapshot instant at the DateTime64(3) precision of the
// tables, so the totals and protocol rows of one snapshot compare equal.
func snapshotTime(snapshot model.Snapshot) time.Time {
	return snapshot.Timestamp.Truncate(time.Millisecond)
}

// totalsRow follows the column order of snapshot_totals.
func totalsRow(runID string, snapshot model.Snapshot) []any {
	return []any{runID, snapshotTime(snapshot), snapshot.TotalPackets, snapshot.TotalBytes, snapshot.UntrackedObservations}
}

// protocolCountRows follows the column order of snapshot_protocol_counts.
func protocolCountRows(runID string, snapshot model.Snapshot) [][]any {
	ts := snapshotTime(snapshot)
	var rows [][]any
	for _, proto := range sortedProtocols(snapshot.ProtocolCounts) {
		rows = append(rows, []any{runID, ts, string(proto), snapshot.ProtocolCounts[proto]})
	}
	return rows
}

// connectionRow follows the column order of connections.
func connectionRow(runID string, c model.Connection) []any {
	return []any{
		runID,
		c.SrcIP, c.SrcPort, c.SrcDomain,
		c.DstIP, c.DstPort, c.DstDomain,
		string(c.Protocol), c.FirstSeen,
	}
}

// unsent returns the connections whose keys are not in sent.
func unsent(conns []model.Connection, sent map[model.FlowKey]struct{}) []model.Connection {
	var fresh []model.Connection
	for _, c := range conns {
		if _, ok := sent[c.Key()]; !ok {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
