package broadcast

import (
	"fmt"
	"sync/atomic"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/factory"
	"Go2NetMonitor/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is used when the config leaves the subject empty.
const DefaultSubject = "gonm.snapshots"

// defaultMaxPayload is the NATS server default, used until the server announces its own.
const defaultMaxPayload = 1 << 20

func init() {
	factory.RegisterWriter("nats", func(def config.WriterDef, interval time.Duration, log logrus.FieldLogger) (model.Writer, error) {
		return NewPublisher(def.NATS, interval, log)
	})
}

// Publisher broadcasts every snapshot to a NATS subject. A snapshot larger
// than the server's max_payload is split into numbered chunks that an
// Assembler puts back together; the latest complete snapshot replaces
// earlier ones.
type Publisher struct {
	nc       *nats.Conn
	subject  string
	interval time.Duration
	seq      atomic.Uint64
	log      logrus.FieldLogger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig, interval time.Duration, log logrus.FieldLogger) (*Publisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("nm-monitor"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.WithField("url", url).Info("Connected to NATS server")

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject, interval: interval, log: log}, nil
}

func (p *Publisher) Name() string { return "nats" }

// GetInterval returns the configured snapshot interval for this writer.
func (p *Publisher) GetInterval() time.Duration {
	return p.interval
}

// Write serializes the snapshot to protobuf and publishes it in as many
// messages as the server's payload limit requires.
func (p *Publisher) Write(snapshot model.Snapshot) error {
	maxPayload := int(p.nc.MaxPayload())
	if maxPayload <= 0 {
		maxPayload = defaultMaxPayload
	}
	msgs, err := EncodeChunks(snapshot, p.seq.Add(1), maxPayload)
	if err != nil {
		return err
	}
	for _, data := range msgs {
		if err := p.nc.Publish(p.subject, data); err != nil {
			return fmt.Errorf("failed to publish snapshot: %w", err)
		}
	}
	if len(msgs) > 1 {
		p.log.WithFields(logrus.Fields{
			"chunks":      len(msgs),
			"max_payload": maxPayload,
		}).Debug("Published snapshot in chunks")
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return err
	}
	p.log.Info("NATS connection drained and closed.")
	return nil
}
