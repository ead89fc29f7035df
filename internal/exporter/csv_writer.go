package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/factory"
	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef, interval time.Duration, log logrus.FieldLogger) (model.Writer, error) {
		return NewCSVWriter(def.CSV.Dir, interval, log), nil
	})
}

// CSVWriter renders snapshots into total_packets.csv, protocol_counts.csv
// and connections.csv under a single directory. Every file is replaced as a
// whole on each Write.
type CSVWriter struct {
	dir      string
	interval time.Duration
	log      logrus.FieldLogger
}

// NewCSVWriter creates a CSV writer. An empty dir means "data".
func NewCSVWriter(dir string, interval time.Duration, log logrus.FieldLogger) *CSVWriter {
	if dir == "" {
		dir = "data"
	}
	return &CSVWriter{dir: dir, interval: interval, log: log}
}

func (w *CSVWriter) Name() string { return "csv" }

// GetInterval returns the configured snapshot interval for this writer.
func (w *CSVWriter) GetInterval() time.Duration {
	return w.interval
}

// Write replaces the three CSV files with the content of the snapshot.
// A failure on one file does not prevent the others from being written.
func (w *CSVWriter) Write(snapshot model.Snapshot) error {
	files := []struct {
		name   string
		render func(io.Writer, model.Snapshot) error
	}{
		{model.TotalPacketsFile, writeTotals},
		{model.ProtocolCountsFile, writeProtocolCounts},
		{model.ConnectionsFile, writeConnections},
	}

	var firstErr error
	for _, f := range files {
		path := filepath.Join(w.dir, f.name)
		err := writeFileAtomic(path, func(out io.Writer) error {
			return f.render(out, snapshot)
		})
		if err != nil {
			err = fmt.Errorf("failed to write '%s': %w", path, err)
			w.log.WithError(err).Error("CSV export failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}

	w.log.WithFields(logrus.Fields{
		"total_packets": snapshot.TotalPackets,
		"connections":   len(snapshot.Connections),
	}).Debug("CSV export written")
	return nil
}

func (w *CSVWriter) Close() error { return nil }

func writeTotals(out io.Writer, snapshot model.Snapshot) error {
	cw := csv.NewWriter(out)
	_ = cw.Write(model.TotalPacketsHeader)
	_ = cw.Write([]string{model.TotalPacketsMetric, strconv.FormatUint(snapshot.TotalPackets, 10)})
	cw.Flush()
	return cw.Error()
}

func writeProtocolCounts(out io.Writer, snapshot model.Snapshot) error {
	cw := csv.NewWriter(out)
	_ = cw.Write(model.ProtocolCountsHeader)
	for _, proto := range sortedProtocols(snapshot.ProtocolCounts) {
		_ = cw.Write([]string{string(proto), strconv.FormatUint(snapshot.ProtocolCounts[proto], 10)})
	}
	cw.Flush()
	return cw.Error()
}

func writeConnections(out io.Writer, snapshot model.Snapshot) error {
	cw := csv.NewWriter(out)
	_ = cw.Write(model.ConnectionsHeader)
	for _, c := range sortedConnections(snapshot.Connections) {
		_ = cw.Write([]string{
			c.SrcIP,
			strconv.Itoa(int(c.SrcPort)),
			model.DisplayDomain(c.SrcDomain),
			c.DstIP,
			strconv.Itoa(int(c.DstPort)),
			model.DisplayDomain(c.DstDomain),
			string(c.Protocol),
		})
	}
	cw.Flush()
	return cw.Error()
}

func sortedProtocols(counts map[model.Protocol]uint64) []model.Protocol {
	protos := make([]model.Protocol, 0, len(counts))
	for p := range counts {
		protos = append(protos, p)
	}
	sort.Slice(protos, func(i, j int) bool { return protos[i] < protos[j] })
	return protos
}

// sortedConnections orders connections by first sight, then by key, without
// touching the caller's slice.
func sortedConnections(conns []model.Connection) []model.Connection {
	out := make([]model.Connection, len(conns))
	copy(out, conns)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		a, b := out[i].Key(), out[j].Key()
		if a.SrcIP != b.SrcIP {
			return a.SrcIP < b.SrcIP
		}
		if a.SrcPort != b.SrcPort {
			return a.SrcPort < b.SrcPort
		}
		if a.DstIP != b.DstIP {
			return a.DstIP < b.DstIP
		}
		return a.DstPort < b.DstPort
	})
	return out
}
