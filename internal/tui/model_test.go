package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/query"
	"Go2NetMonitor/internal/testutil"

	tea "github.com/charmbracelet/bubbletea"
)

func staticFetch(snap model.Snapshot, err error) FetchFunc {
	return func(ctx context.Context) (model.Snapshot, error) {
		return snap, err
	}
}

func TestPollingModel_ShowsSnapshot(t *testing.T) {
	m := NewPollingModel("csv:data", staticFetch(testutil.SampleSnapshot(), nil), time.Second)

	msg := m.Init()()
	if _, ok := msg.(snapshotMsg); !ok {
		t.Fatalf("Expected snapshotMsg from Init, got %T", msg)
	}
	updated, cmd := m.Update(msg)
	if cmd == nil {
		t.Error("Expected a follow-up tick")
	}

	view := updated.View()
	for _, want := range []string{"csv:data", "Total Packets: 3", "Total Bytes: 190", "Connections: 2", "TCP: 2", "UDP: 1", "dns.example", model.UnresolvedDomain} {
		if !strings.Contains(view, want) {
			t.Errorf("View is missing %q:\n%s", want, view)
		}
	}
}

func TestPollingModel_TickFetches(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (model.Snapshot, error) {
		calls++
		return testutil.SampleSnapshot(), nil
	}
	m := NewPollingModel("csv", fetch, time.Second)

	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("Expected a fetch command on tick")
	}
	if _, ok := cmd().(snapshotMsg); !ok {
		t.Error("Expected the fetch command to produce a snapshot")
	}
	if calls != 1 {
		t.Errorf("Expected 1 fetch, got %d", calls)
	}
}

func TestPollingModel_Errors(t *testing.T) {
	notYet := fmt.Errorf("Total packets %w", query.ErrNotAvailable)
	m := NewPollingModel("csv", staticFetch(model.Snapshot{}, notYet), time.Second)

	updated, _ := m.Update(m.Init()())
	if view := updated.View(); !strings.Contains(view, "Waiting for data: Total packets data not available") {
		t.Errorf("Unexpected view for missing data:\n%s", view)
	}

	m = NewPollingModel("csv", staticFetch(model.Snapshot{}, errors.New("boom")), time.Second)
	updated, cmd := m.Update(m.Init()())
	if !strings.Contains(updated.View(), "Error: boom") {
		t.Errorf("Expected the error in the view:\n%s", updated.View())
	}
	if cmd == nil {
		t.Error("Expected polling to continue after an error")
	}
}

func TestStreamModel(t *testing.T) {
	updates := make(chan model.Snapshot, 1)
	m := NewStreamModel("nats", updates)

	updates <- testutil.SampleSnapshot()
	updated, cmd := m.Update(m.Init()())
	if !strings.Contains(updated.View(), "Total Packets: 3") {
		t.Errorf("Expected the pushed snapshot in the view:\n%s", updated.View())
	}

	close(updates)
	msg := cmd()
	if _, ok := msg.(streamClosedMsg); !ok {
		t.Fatalf("Expected streamClosedMsg, got %T", msg)
	}
	updated, _ = updated.Update(msg)
	if !strings.Contains(updated.View(), "Snapshot stream closed.") {
		t.Errorf("Expected the closed notice:\n%s", updated.View())
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewPollingModel("csv", staticFetch(model.Snapshot{}, nil), time.Second)

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("Expected a quit command for %q", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("Expected QuitMsg for %q", key.String())
		}
	}
}

func TestConnectionRows_OrderByFirstSeen(t *testing.T) {
	rows := connectionRows(testutil.SampleSnapshot().Connections)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0][4] != "80" || rows[1][4] != "53" {
		t.Errorf("Expected the HTTP flow first, got %v", rows)
	}
	if rows[0][5] != model.UnresolvedDomain {
		t.Errorf("Expected N/A for an unresolved domain, got %q", rows[0][5])
	}
}
