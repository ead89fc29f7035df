package exporter

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"Go2NetMonitor/internal/logging"
	"Go2NetMonitor/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
)

func newMockWriter(t *testing.T, driver string) (*SQLWriter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"total_packets", "protocol_counts", "connections"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	w, err := NewSQLWriter(db, driver, time.Second, logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLWriter: %v", err)
	}
	w.backoff = []time.Duration{time.Millisecond}
	return w, mock
}

func expectReplace(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM total_packets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM protocol_counts").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM connections").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO total_packets (metric, value) VALUES (?, ?)")).
		WithArgs("Total Packets", int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO protocol_counts (protocol, packet_count) VALUES (?, ?)")).
		WithArgs("TCP", int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO protocol_counts (protocol, packet_count) VALUES (?, ?)")).
		WithArgs("UDP", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare("INSERT INTO connections")
	prep.ExpectExec().
		WithArgs("10.0.0.1", int64(6000), "N/A", "10.0.0.3", int64(53), "dns.example", "UDP", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("10.0.0.1", int64(5000), "N/A", "10.0.0.2", int64(80), "N/A", "TCP", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestSQLWriter_Write(t *testing.T) {
	w, mock := newMockWriter(t, "sqlite3")
	expectReplace(mock)

	if err := w.Write(testutil.SampleSnapshot()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLWriter_RetriesOnBusy(t *testing.T) {
	w, mock := newMockWriter(t, "sqlite3")
	mock.ExpectBegin().WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})
	expectReplace(mock)

	if err := w.Write(testutil.SampleSnapshot()); err != nil {
		t.Fatalf("Write failed after retry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLWriter_RollsBackOnError(t *testing.T) {
	w, mock := newMockWriter(t, "sqlite3")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM total_packets").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := w.Write(testutil.SampleSnapshot()); err == nil {
		t.Fatal("Expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLWriter_Placeholders(t *testing.T) {
	pg := &SQLWriter{driver: "postgres"}
	if got := pg.placeholders(3); got != "$1, $2, $3" {
		t.Errorf("postgres placeholders: got %q", got)
	}
	lite := &SQLWriter{driver: "sqlite3"}
	if got := lite.placeholders(2); got != "?, ?" {
		t.Errorf("sqlite placeholders: got %q", got)
	}
}

func TestOpenSQLWriter_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := sqlConfig("sqlite3", dir+"/db/monitor.db")
	w, err := OpenSQLWriter(cfg, time.Second, logging.Discard())
	if err != nil {
		t.Fatalf("OpenSQLWriter failed: %v", err)
	}
	defer w.Close()

	if err := w.Write(testutil.SampleSnapshot()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Write(testutil.SampleSnapshot()); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	var total int64
	if err := w.db.QueryRow("SELECT value FROM total_packets WHERE metric = ?", "Total Packets").Scan(&total); err != nil {
		t.Fatalf("query total: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	var n int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM connections").Scan(&n); err != nil {
		t.Fatalf("count connections: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 connections after replacement, got %d", n)
	}
	var domain sql.NullString
	if err := w.db.QueryRow("SELECT dst_domain FROM connections WHERE dst_port = ?", 53).Scan(&domain); err != nil {
		t.Fatalf("query domain: %v", err)
	}
	if domain.String != "dns.example" {
		t.Errorf("Expected dns.example, got %q", domain.String)
	}
}

func TestOpenSQLWriter_UnknownDriver(t *testing.T) {
	if _, err := OpenSQLWriter(sqlConfig("oracle", "x"), time.Second, logging.Discard()); err == nil {
		t.Error("Expected an error for an unsupported driver")
	}
}
