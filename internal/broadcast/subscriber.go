package broadcast

import (
	"fmt"

	"Go2NetMonitor/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// SnapshotHandler is a function that processes a received snapshot.
type SnapshotHandler func(snapshot model.Snapshot)

// Subscriber receives snapshots published by a Publisher.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	asm     Assembler
	log     logrus.FieldLogger
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(url, subject string, log logrus.FieldLogger) (*Subscriber, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.WithField("url", url).Info("Connected to NATS server")
	return &Subscriber{nc: nc, subject: subject, log: log}, nil
}

// Start subscribes to the subject and hands every complete snapshot to handler.
// The handler runs on the subscription's goroutine, one message at a time.
func (s *Subscriber) Start(handler SnapshotHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		dispatch(&s.asm, msg.Data, handler, s.log)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.WithField("subject", s.subject).Info("Subscribed, waiting for snapshots")
	return nil
}

// dispatch feeds one message to asm. Undecodable messages are logged and dropped.
func dispatch(asm *Assembler, data []byte, handler SnapshotHandler, log logrus.FieldLogger) {
	snapshot, complete, err := asm.Add(data)
	if err != nil {
		log.WithError(err).Warn("Dropping undecodable snapshot message")
		return
	}
	if complete {
		handler(snapshot)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.log.Info("NATS connection closed.")
	}
}
