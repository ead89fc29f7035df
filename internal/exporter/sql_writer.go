package exporter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/factory"
	"Go2NetMonitor/internal/model"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const sqlWriteTimeout = 30 * time.Second

const createSQLTables = `
CREATE TABLE IF NOT EXISTS total_packets (
    metric TEXT PRIMARY KEY,
    value  BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS protocol_counts (
    protocol     TEXT PRIMARY KEY,
    packet_count BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS connections (
    src_ip     TEXT    NOT NULL,
    src_port   INTEGER NOT NULL,
    src_domain TEXT    NOT NULL,
    dst_ip     TEXT    NOT NULL,
    dst_port   INTEGER NOT NULL,
    dst_domain TEXT    NOT NULL,
    protocol   TEXT    NOT NULL,
    first_seen TIMESTAMP NOT NULL,
    PRIMARY KEY (src_ip, src_port, dst_ip, dst_port)
);
`

func init() {
	factory.RegisterWriter("sql", func(def config.WriterDef, interval time.Duration, log logrus.FieldLogger) (model.Writer, error) {
		return OpenSQLWriter(def.SQL, interval, log)
	})
}

// SQLWriter mirrors the CSV export into three tables of a SQLite or Postgres
// database. Each Write replaces the table contents inside one transaction.
type SQLWriter struct {
	db       *sql.DB
	driver   string
	interval time.Duration
	backoff  []time.Duration
	log      logrus.FieldLogger
}

// OpenSQLWriter opens the database, checks it is reachable and creates the tables.
func OpenSQLWriter(cfg config.SQLConfig, interval time.Duration, log logrus.FieldLogger) (*SQLWriter, error) {
	switch cfg.Driver {
	case "sqlite3":
		if dir := filepath.Dir(cfg.DSN); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported sql driver '%s'", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	w, err := NewSQLWriter(db, cfg.Driver, interval, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// NewSQLWriter wraps an open database and ensures the tables exist.
func NewSQLWriter(db *sql.DB, driver string, interval time.Duration, log logrus.FieldLogger) (*SQLWriter, error) {
	for _, stmt := range strings.Split(createSQLTables, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	return &SQLWriter{
		db:       db,
		driver:   driver,
		interval: interval,
		backoff:  defaultBackoff,
		log:      log,
	}, nil
}

func (w *SQLWriter) Name() string { return "sql" }

// GetInterval returns the configured snapshot interval for this writer.
func (w *SQLWriter) GetInterval() time.Duration {
	return w.interval
}

// Write replaces the three tables with the snapshot. Transient failures are
// retried with a short backoff; the whole transaction is redone each time.
func (w *SQLWriter) Write(snapshot model.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlWriteTimeout)
	defer cancel()

	op := func() error { return w.replace(ctx, snapshot) }
	if err := retry(ctx, w.backoff, isRetryableSQL, op); err != nil {
		return fmt.Errorf("failed to write snapshot to %s: %w", w.driver, err)
	}
	w.log.WithField("connections", len(snapshot.Connections)).Debug("SQL snapshot written")
	return nil
}

func (w *SQLWriter) replace(ctx context.Context, snapshot model.Snapshot) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"total_packets", "protocol_counts", "connections"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO total_packets (metric, value) VALUES ("+w.placeholders(2)+")",
		model.TotalPacketsMetric, int64(snapshot.TotalPackets)); err != nil {
		return err
	}

	for _, proto := range sortedProtocols(snapshot.ProtocolCounts) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO protocol_counts (protocol, packet_count) VALUES ("+w.placeholders(2)+")",
			string(proto), int64(snapshot.ProtocolCounts[proto])); err != nil {
			return err
		}
	}

	if len(snapshot.Connections) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO connections (src_ip, src_port, src_domain, dst_ip, dst_port, dst_domain, protocol, first_seen) VALUES ("+w.placeholders(8)+")")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range snapshot.Connections {
			if _, err := stmt.ExecContext(ctx,
				c.SrcIP, int(c.SrcPort), model.DisplayDomain(c.SrcDomain),
				c.DstIP, int(c.DstPort), model.DisplayDomain(c.DstDomain),
				string(c.Protocol), c.FirstSeen.UTC()); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// placeholders returns n bind parameters in the driver's syntax.
func (w *SQLWriter) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		if w.driver == "postgres" {
			ps[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}

func (w *SQLWriter) Close() error {
	return w.db.Close()
}
