package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// clickhouseQuerier reads the latest snapshot from the tables maintained by
// the ClickHouse writer.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// latestRun is the newest row of snapshot_totals. Its run id and timestamp
// select the protocol counts and connections that belong with it.
type latestRun struct {
	RunID        string
	Timestamp    time.Time
	TotalPackets uint64
	TotalBytes   uint64
	Untracked    uint64
}

const latestTotalsQuery = `
		SELECT RunID, Timestamp, TotalPackets, TotalBytes, UntrackedObservations
		FROM snapshot_totals
		ORDER BY Timestamp DESC
		LIMIT 1
	`

// protocolCountsQuery selects the protocol counters written with the totals row.
func protocolCountsQuery(run latestRun) (string, []any) {
	return `
		SELECT Protocol, PacketCount
		FROM snapshot_protocol_counts
		WHERE RunID = ? AND Timestamp = ?
	`, []any{run.RunID, run.Timestamp}
}

// connectionsQuery selects the connection table of one monitor run.
func connectionsQuery(run latestRun) (string, []any) {
	return `
		SELECT SrcIP, SrcPort, SrcDomain, DstIP, DstPort, DstDomain, Protocol, FirstSeen
		FROM connections FINAL
		WHERE RunID = ?
		ORDER BY FirstSeen
	`, []any{run.RunID}
}

func (q *clickhouseQuerier) latestTotals(ctx context.Context, what string) (latestRun, error) {
	var run latestRun
	row := q.conn.QueryRow(ctx, latestTotalsQuery)
	if err := row.Scan(&run.RunID, &run.Timestamp, &run.TotalPackets, &run.TotalBytes, &run.Untracked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, notAvailable(what)
		}
		return run, fmt.Errorf("failed to scan totals: %w", err)
	}
	return run, nil
}

func (q *clickhouseQuerier) TotalPackets(ctx context.Context) (uint64, error) {
	run, err := q.latestTotals(ctx, "Total packets")
	return run.TotalPackets, err
}

func (q *clickhouseQuerier) ProtocolCounts(ctx context.Context) (map[model.Protocol]uint64, error) {
	run, err := q.latestTotals(ctx, "Protocol counts")
	if err != nil {
		return nil, err
	}
	return q.protocolCounts(ctx, run)
}

func (q *clickhouseQuerier) protocolCounts(ctx context.Context, run latestRun) (map[model.Protocol]uint64, error) {
	query, args := protocolCountsQuery(run)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Protocol]uint64)
	for rows.Next() {
		var (
			proto string
			n     uint64
		)
		if err := rows.Scan(&proto, &n); err != nil {
			return nil, fmt.Errorf("failed to scan protocol count: %w", err)
		}
		counts[model.Protocol(proto)] = n
	}
	return counts, rows.Err()
}

func (q *clickhouseQuerier) Connections(ctx context.Context) ([]model.Connection, error) {
	run, err := q.latestTotals(ctx, "Connections")
	if err != nil {
		return nil, err
	}
	return q.connections(ctx, run)
}

func (q *clickhouseQuerier) connections(ctx context.Context, run latestRun) ([]model.Connection, error) {
	query, args := connectionsQuery(run)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var conns []model.Connection
	for rows.Next() {
		var (
			c     model.Connection
			proto string
		)
		if err := rows.Scan(&c.SrcIP, &c.SrcPort, &c.SrcDomain, &c.DstIP, &c.DstPort, &c.DstDomain, &proto, &c.FirstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		c.Protocol = model.Protocol(proto)
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// Snapshot reads the newest totals row and the counters and connections
// written by the same run, so rows of other runs never mix in.
func (q *clickhouseQuerier) Snapshot(ctx context.Context) (model.Snapshot, error) {
	run, err := q.latestTotals(ctx, "Snapshot")
	if err != nil {
		return model.Snapshot{}, err
	}
	counts, err := q.protocolCounts(ctx, run)
	if err != nil {
		return model.Snapshot{}, err
	}
	conns, err := q.connections(ctx, run)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		Timestamp:             run.Timestamp,
		TotalPackets:          run.TotalPackets,
		TotalBytes:            run.TotalBytes,
		ProtocolCounts:        counts,
		Connections:           conns,
		UntrackedObservations: run.Untracked,
	}, nil
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
