package exporter

import (
	"testing"
	"time"

	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/testutil"
)

func TestUnsent(t *testing.T) {
	conns := testutil.SampleSnapshot().Connections
	sent := map[model.FlowKey]struct{}{}

	if got := unsent(conns, sent); len(got) != 2 {
		t.Fatalf("Expected 2 unsent connections, got %d", len(got))
	}
	sent[conns[0].Key()] = struct{}{}
	got := unsent(conns, sent)
	if len(got) != 1 || got[0].Key() != conns[1].Key() {
		t.Errorf("Expected only %s, got %v", conns[1].Key(), got)
	}
}

func TestClickHouseRows_CarryRunAndSnapshotTime(t *testing.T) {
	snap := testutil.SampleSnapshot()
	snap.Timestamp = testutil.SampleTime.Add(1234567 * time.Nanosecond)
	wantTS := testutil.SampleTime.Add(time.Millisecond)

	totals := totalsRow("run-a", snap)
	if len(totals) != 5 || totals[0] != "run-a" || totals[2] != uint64(3) || totals[3] != uint64(190) {
		t.Fatalf("Unexpected totals row: %v", totals)
	}
	if ts := totals[1].(time.Time); !ts.Equal(wantTS) {
		t.Errorf("Expected totals time truncated to %v, got %v", wantTS, ts)
	}

	protos := protocolCountRows("run-a", snap)
	if len(protos) != 2 {
		t.Fatalf("Expected 2 protocol rows, got %d", len(protos))
	}
	for _, row := range protos {
		if row[0] != "run-a" {
			t.Errorf("Protocol row without run id: %v", row)
		}
		if ts := row[1].(time.Time); !ts.Equal(totals[1].(time.Time)) {
			t.Errorf("Protocol row time %v differs from totals time %v", ts, totals[1])
		}
	}
	if protos[0][2] != "TCP" || protos[0][3] != uint64(2) || protos[1][2] != "UDP" {
		t.Errorf("Expected TCP then UDP rows, got %v", protos)
	}

	conn := connectionRow("run-a", snap.Connections[0])
	if len(conn) != 9 || conn[0] != "run-a" || conn[1] != "10.0.0.1" || conn[5] != uint16(53) || conn[7] != "UDP" {
		t.Errorf("Unexpected connection row: %v", conn)
	}
}
