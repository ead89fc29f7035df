package factory

import (
	"errors"
	"testing"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/logging"
	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

type stubWriter struct {
	name     string
	interval time.Duration
	closed   bool
}

func (w *stubWriter) Name() string               { return w.name }
func (w *stubWriter) Write(model.Snapshot) error { return nil }
func (w *stubWriter) GetInterval() time.Duration { return w.interval }
func (w *stubWriter) Close() error               { w.closed = true; return nil }

var created []*stubWriter

func init() {
	RegisterWriter("stub", func(def config.WriterDef, interval time.Duration, _ logrus.FieldLogger) (model.Writer, error) {
		w := &stubWriter{name: def.Type, interval: interval}
		created = append(created, w)
		return w, nil
	})
	RegisterWriter("broken", func(config.WriterDef, time.Duration, logrus.FieldLogger) (model.Writer, error) {
		return nil, errors.New("sink unreachable")
	})
}

func TestCreate(t *testing.T) {
	cfg := config.Default()
	cfg.Exporter.Writers = []config.WriterDef{
		{Type: "stub", Enabled: true, SnapshotInterval: "2s"},
		{Type: "stub", Enabled: false, SnapshotInterval: "1s"},
		{Type: "broken", Enabled: true, SnapshotInterval: "1s"},
	}

	writers, err := Create(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(writers) != 1 {
		t.Fatalf("Expected 1 writer (disabled and broken skipped), got %d", len(writers))
	}
	if writers[0].GetInterval() != 2*time.Second {
		t.Errorf("Expected interval 2s, got %s", writers[0].GetInterval())
	}
}

func TestCreate_UnknownTypeClosesBuiltWriters(t *testing.T) {
	created = nil
	cfg := config.Default()
	cfg.Exporter.Writers = []config.WriterDef{
		{Type: "stub", Enabled: true, SnapshotInterval: "1s"},
		{Type: "carrier-pigeon", Enabled: true, SnapshotInterval: "1s"},
	}

	if _, err := Create(cfg, logging.Discard()); err == nil {
		t.Fatal("Expected an error for an unknown writer type")
	}
	if len(created) != 1 || !created[0].closed {
		t.Error("Expected the already built writer to be closed")
	}
}

func TestRegisterWriter_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic on duplicate registration")
		}
	}()
	RegisterWriter("stub", nil)
}

func TestTypes(t *testing.T) {
	types := Types()
	if len(types) < 2 || types[0] != "broken" || types[1] != "stub" {
		t.Errorf("Unexpected registered types: %v", types)
	}
}
