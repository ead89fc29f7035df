package query

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"Go2NetMonitor/internal/model"
)

// CSVQuerier reads the files written by the CSV writer. Each call reads the
// files afresh, so it always sees the latest complete export.
type CSVQuerier struct {
	dir string
}

// NewCSVQuerier creates a querier over an export directory. An empty dir means "data".
func NewCSVQuerier(dir string) *CSVQuerier {
	if dir == "" {
		dir = "data"
	}
	return &CSVQuerier{dir: dir}
}

// readRecords returns the data rows of a CSV export after checking its header.
func (q *CSVQuerier) readRecords(name, what string, header []string) ([][]string, time.Time, error) {
	path := filepath.Join(q.dir, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, notAvailable(what)
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	records, err := r.ReadAll()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, time.Time{}, notAvailable(what)
	}
	for i, col := range header {
		if records[0][i] != col {
			return nil, time.Time{}, fmt.Errorf("unexpected header in %s: %v", name, records[0])
		}
	}
	return records[1:], info.ModTime(), nil
}

func (q *CSVQuerier) TotalPackets(ctx context.Context) (uint64, error) {
	total, _, err := q.totalPackets()
	return total, err
}

func (q *CSVQuerier) totalPackets() (uint64, time.Time, error) {
	rows, mod, err := q.readRecords(model.TotalPacketsFile, "Total packets", model.TotalPacketsHeader)
	if err != nil {
		return 0, mod, err
	}
	for _, row := range rows {
		if row[0] != model.TotalPacketsMetric {
			continue
		}
		n, err := strconv.ParseUint(row[1], 10, 64)
		if err != nil {
			return 0, mod, fmt.Errorf("invalid total packets value %q: %w", row[1], err)
		}
		return n, mod, nil
	}
	return 0, mod, notAvailable("Total packets")
}

func (q *CSVQuerier) ProtocolCounts(ctx context.Context) (map[model.Protocol]uint64, error) {
	rows, _, err := q.readRecords(model.ProtocolCountsFile, "Protocol counts", model.ProtocolCountsHeader)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.Protocol]uint64, len(rows))
	for _, row := range rows {
		n, err := strconv.ParseUint(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid packet count for %s: %w", row[0], err)
		}
		counts[model.Protocol(row[0])] = n
	}
	return counts, nil
}

func (q *CSVQuerier) Connections(ctx context.Context) ([]model.Connection, error) {
	rows, _, err := q.readRecords(model.ConnectionsFile, "Connections", model.ConnectionsHeader)
	if err != nil {
		return nil, err
	}
	conns := make([]model.Connection, 0, len(rows))
	for i, row := range rows {
		srcPort, err := parsePort(row[1])
		if err != nil {
			return nil, fmt.Errorf("connections row %d: %w", i+1, err)
		}
		dstPort, err := parsePort(row[4])
		if err != nil {
			return nil, fmt.Errorf("connections row %d: %w", i+1, err)
		}
		conns = append(conns, model.Connection{
			SrcIP:     row[0],
			SrcPort:   srcPort,
			SrcDomain: parseDomain(row[2]),
			DstIP:     row[3],
			DstPort:   dstPort,
			DstDomain: parseDomain(row[5]),
			Protocol:  model.Protocol(row[6]),
		})
	}
	return conns, nil
}

// Snapshot combines the three files. The CSV writer replaces them one after
// the other, so the result may mix two consecutive exports.
func (q *CSVQuerier) Snapshot(ctx context.Context) (model.Snapshot, error) {
	total, mod, err := q.totalPackets()
	if err != nil {
		return model.Snapshot{}, err
	}
	counts, err := q.ProtocolCounts(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	conns, err := q.Connections(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		Timestamp:      mod,
		TotalPackets:   total,
		ProtocolCounts: counts,
		Connections:    conns,
	}, nil
}

func (q *CSVQuerier) Close() error { return nil }

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}

func parseDomain(s string) string {
	if s == model.UnresolvedDomain {
		return ""
	}
	return s
}
