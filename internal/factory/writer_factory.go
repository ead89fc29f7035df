package factory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

// WriterFactory builds a writer from its config entry. interval has already
// been parsed and validated.
type WriterFactory func(def config.WriterDef, interval time.Duration, log logrus.FieldLogger) (model.Writer, error)

var (
	mu sync.RWMutex
	// registry holds the mapping of writer types to their factory functions.
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types in sorted order.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled writer in the exporter config.
//
// An unknown type is a configuration error. A writer whose sink cannot be
// reached is skipped with a warning so the remaining exports still run.
func Create(cfg *config.Config, log logrus.FieldLogger) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Exporter.Writers {
		if !def.Enabled {
			continue
		}
		wlog := log.WithField("writer", def.Type)

		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()
		if !ok {
			closeAll(writers, log)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		interval, err := def.Interval()
		if err != nil {
			closeAll(writers, log)
			return nil, err
		}

		writer, err := factory(def, interval, wlog)
		if err != nil {
			wlog.WithError(err).Warn("Failed to create writer, skipping")
			continue
		}
		wlog.WithField("interval", interval).Info("Writer created")
		writers = append(writers, writer)
	}

	return writers, nil
}

func closeAll(writers []model.Writer, log logrus.FieldLogger) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.WithError(err).WithField("writer", w.Name()).Warn("Failed to close writer")
		}
	}
}
