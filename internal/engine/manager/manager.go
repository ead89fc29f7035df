package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"Go2NetMonitor/internal/alerter"
	_ "Go2NetMonitor/internal/broadcast" // Registers the nats writer
	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/engine/protocol"
	"Go2NetMonitor/internal/engine/store"
	_ "Go2NetMonitor/internal/exporter" // Registers the csv, gob, sql and clickhouse writers
	"Go2NetMonitor/internal/factory"
	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/notification"
	"Go2NetMonitor/internal/resolver"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source is one capture source feeding the store.
type Source struct {
	Name     string
	Data     gopacket.PacketDataSource
	LinkType layers.LinkType
}

// Stats counts frames seen by the ingestion loops.
type Stats struct {
	Frames       uint64
	Unclassified uint64
}

// Manager wires capture sources to the metrics store and the store to the
// snapshot writers.
type Manager struct {
	store   model.MetricsStore
	writers []model.Writer
	log     logrus.FieldLogger

	frames       atomic.Uint64
	unclassified atomic.Uint64
	classifiers  sync.Pool

	// Snapshotting resources
	done          chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
	snapshotterWg sync.WaitGroup
}

// NewManager builds the resolver, the store, every enabled writer and the
// alerter from the config.
func NewManager(cfg *config.Config, log logrus.FieldLogger) (*Manager, error) {
	var res model.Resolver
	if cfg.Resolver.Enabled {
		cache, err := resolver.New(resolver.Options{
			Timeout:    cfg.ResolverTimeout(),
			MaxEntries: cfg.Resolver.MaxEntries,
			Logger:     log.WithField("component", "resolver"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resolver: %w", err)
		}
		res = cache
	}

	st := store.New(store.Options{
		NumShards:      cfg.Store.NumShards,
		MaxConnections: cfg.Store.MaxConnections,
		Resolver:       res,
		Logger:         log.WithField("component", "store"),
	})

	writers, err := factory.Create(cfg, log.WithField("component", "exporter"))
	if err != nil {
		return nil, err
	}

	if cfg.Alerter.Enabled {
		alog := log.WithField("component", "alerter")
		a, err := alerter.NewAlerter(&cfg.Alerter, notification.New(cfg.Alerter.SMTP, alog), alog)
		if err != nil {
			closeWriters(writers, log)
			return nil, fmt.Errorf("failed to create alerter: %w", err)
		}
		writers = append(writers, a)
		alog.WithField("rules", len(cfg.Alerter.Rules)).Info("Alerter enabled and initialized.")
	}

	return New(st, writers, log), nil
}

// New creates a Manager over an existing store and writers.
func New(st model.MetricsStore, writers []model.Writer, log logrus.FieldLogger) *Manager {
	m := &Manager{
		store:   st,
		writers: writers,
		log:     log,
		done:    make(chan struct{}),
	}
	m.classifiers.New = func() any {
		c, _ := protocol.NewClassifier(layers.LinkTypeEthernet)
		return c
	}
	return m
}

// Store returns the metrics store fed by the manager.
func (m *Manager) Store() model.MetricsStore {
	return m.store
}

// Stats returns the ingestion counters.
func (m *Manager) Stats() Stats {
	return Stats{Frames: m.frames.Load(), Unclassified: m.unclassified.Load()}
}

// Start launches one snapshotter per writer.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		for _, writer := range m.writers {
			m.snapshotterWg.Add(1)
			go m.runSnapshotter(writer)
			m.log.WithFields(logrus.Fields{
				"writer":   writer.Name(),
				"interval": writer.GetInterval(),
			}).Info("Started snapshotter")
		}
	})
}

// runSnapshotter runs a dedicated snapshot loop for a single writer.
// A missed tick is dropped rather than caught up.
func (m *Manager) runSnapshotter(writer model.Writer) {
	defer m.snapshotterWg.Done()
	interval := writer.GetInterval()
	if interval <= 0 {
		m.log.WithField("writer", writer.Name()).Errorf("Invalid interval %s, snapshotter will not run", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshotForWriter(writer)
		case <-m.done:
			m.takeSnapshotForWriter(writer)
			return
		}
	}
}

// takeSnapshotForWriter takes exactly one snapshot and hands it to the writer.
func (m *Manager) takeSnapshotForWriter(writer model.Writer) {
	snapshot := m.store.Snapshot()
	start := time.Now()
	if err := writer.Write(snapshot); err != nil {
		m.log.WithError(err).WithField("writer", writer.Name()).Error("Error writing snapshot")
		return
	}
	m.log.WithFields(logrus.Fields{
		"writer":        writer.Name(),
		"total_packets": snapshot.TotalPackets,
		"connections":   len(snapshot.Connections),
		"took":          time.Since(start),
	}).Debug("Completed snapshot")
}

// Stop performs a final export on every writer, waits for the snapshotters
// and closes the writers. Ingestion must have ended before Stop is called
// for the final export to include every frame.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.log.Info("Manager stopping...")
		started := true
		m.startOnce.Do(func() { started = false })
		close(m.done)
		m.snapshotterWg.Wait()

		// A manager that was never started still owes its writers a final export.
		if !started {
			for _, writer := range m.writers {
				m.takeSnapshotForWriter(writer)
			}
		}

		closeWriters(m.writers, m.log)
		m.log.WithFields(logrus.Fields{
			"frames":       m.frames.Load(),
			"unclassified": m.unclassified.Load(),
		}).Info("Manager stopped.")
	})
}

func closeWriters(writers []model.Writer, log logrus.FieldLogger) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.WithError(err).WithField("writer", w.Name()).Warn("Failed to close writer")
		}
	}
}

// Run ingests every source concurrently until all are exhausted, one of them
// fails or ctx is cancelled. The first failure cancels the other sources and
// is returned.
func (m *Manager) Run(ctx context.Context, sources ...Source) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			return m.Ingest(ctx, src)
		})
	}
	return g.Wait()
}

// Ingest reads frames from one source into the store. It returns nil when
// the source is exhausted or ctx is cancelled, and the read error when the
// source fails. Read timeouts are not failures.
func (m *Manager) Ingest(ctx context.Context, src Source) error {
	classifier, err := protocol.NewClassifier(src.LinkType)
	if err != nil {
		return fmt.Errorf("capture source '%s': %w", src.Name, err)
	}
	log := m.log.WithField("source", src.Name)
	log.WithField("link_type", src.LinkType).Info("Ingestion started")

	for {
		if ctx.Err() != nil {
			log.Info("Ingestion cancelled")
			return nil
		}

		data, ci, err := src.Data.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Info("Capture source exhausted")
			return nil
		case isTimeout(err):
			continue
		default:
			return fmt.Errorf("capture source '%s' failed: %w", src.Name, err)
		}

		m.process(ctx, classifier, data, ci.Timestamp, log)
	}
}

// HandleFrame classifies and records a single Ethernet frame. It is the
// callback form of Ingest for capture mechanisms that push frames, and is
// safe for concurrent use.
func (m *Manager) HandleFrame(ctx context.Context, data []byte, ts time.Time) {
	c := m.classifiers.Get().(*protocol.Classifier)
	defer m.classifiers.Put(c)
	m.process(ctx, c, data, ts, m.log)
}

func (m *Manager) process(ctx context.Context, c *protocol.Classifier, data []byte, ts time.Time, log logrus.FieldLogger) {
	m.frames.Add(1)
	obs, err := c.ClassifyAt(data, ts)
	if err != nil {
		m.unclassified.Add(1)
		log.WithError(err).Trace("Skipping frame")
		return
	}
	m.store.Record(ctx, obs)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
