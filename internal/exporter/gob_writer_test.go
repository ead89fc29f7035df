package exporter

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Go2NetMonitor/internal/logging"
	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/testutil"
)

func TestGobWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewGobWriter(dir, 10*time.Second, logging.Discard())

	want := testutil.SampleSnapshot()
	if err := w.Write(want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, model.GobSnapshotFile))
	if err != nil {
		t.Fatalf("Failed to open gob file: %v", err)
	}
	defer f.Close()
	var got model.Snapshot
	if err := gob.NewDecoder(f).Decode(&got); err != nil {
		t.Fatalf("Failed to decode gob file: %v", err)
	}
	if got.TotalPackets != 3 || got.TotalBytes != want.TotalBytes || got.ProtocolCounts[model.ProtocolTCP] != 2 || len(got.Connections) != 2 {
		t.Errorf("Decoded snapshot mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", want.Timestamp, got.Timestamp)
	}

	data, err := os.ReadFile(filepath.Join(dir, model.GobSummaryFile))
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("Failed to parse summary: %v", err)
	}
	if summary.TotalPackets != 3 || summary.TotalBytes != 190 || summary.TotalConnections != 2 || summary.ProtocolCounts["UDP"] != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("Unexpected summary timestamp %q", summary.Timestamp)
	}
}
