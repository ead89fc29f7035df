package alerter

import (
	"fmt"
	"strings"
	"time"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

const protocolMetricPrefix = "protocol:"

// Alerter evaluates snapshots against threshold rules and sends one
// consolidated notification per check when any rule triggers. It runs as a
// snapshot writer, so the exporter drives it on its check interval.
type Alerter struct {
	rules         []config.AlerterRule
	notifier      model.Notifier
	checkInterval time.Duration
	log           logrus.FieldLogger
}

var _ model.Writer = (*Alerter)(nil)

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier, log logrus.FieldLogger) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if notifier == nil {
		return nil, fmt.Errorf("alerter requires a notifier")
	}
	for _, rule := range cfg.Rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}
	}

	return &Alerter{
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: interval,
		log:           log,
	}, nil
}

func validateRule(rule config.AlerterRule) error {
	switch {
	case rule.Metric == "total_packets", rule.Metric == "total_bytes",
		rule.Metric == "connections", rule.Metric == "untracked_observations":
	case strings.HasPrefix(rule.Metric, protocolMetricPrefix) && len(rule.Metric) > len(protocolMetricPrefix):
	default:
		return fmt.Errorf("alerter rule '%s': unknown metric '%s'", rule.Name, rule.Metric)
	}
	if _, ok := operators[rule.Operator]; !ok {
		return fmt.Errorf("alerter rule '%s': unknown operator '%s'", rule.Name, rule.Operator)
	}
	return nil
}

func (a *Alerter) Name() string { return "alerter" }

// GetInterval returns the rule check interval.
func (a *Alerter) GetInterval() time.Duration {
	return a.checkInterval
}

// Write evaluates every rule against the snapshot.
func (a *Alerter) Write(snapshot model.Snapshot) error {
	messages := a.Evaluate(snapshot)
	if len(messages) == 0 {
		return nil
	}

	a.log.WithField("triggered", len(messages)).Info("Alerter evaluation completed")

	subject := fmt.Sprintf("Go2NetMonitor Alert Summary (%d Triggered)", len(messages))
	body := "The following alerts were triggered at " +
		snapshot.Timestamp.UTC().Format(time.RFC3339) + ":\n\n" +
		strings.Join(messages, "\n")
	if err := a.notifier.Send(subject, body); err != nil {
		return fmt.Errorf("failed to send alert notification: %w", err)
	}
	return nil
}

// Evaluate returns one message per triggered rule.
func (a *Alerter) Evaluate(snapshot model.Snapshot) []string {
	var triggered []string
	for _, rule := range a.rules {
		value := metricValue(rule.Metric, snapshot)
		if !operators[rule.Operator](value, rule.Threshold) {
			continue
		}
		triggered = append(triggered, fmt.Sprintf("- %s: %s %s %.0f (observed %.0f)",
			rule.Name, rule.Metric, rule.Operator, rule.Threshold, value))
	}
	return triggered
}

func (a *Alerter) Close() error { return nil }

func metricValue(metric string, snapshot model.Snapshot) float64 {
	switch metric {
	case "total_packets":
		return float64(snapshot.TotalPackets)
	case "total_bytes":
		return float64(snapshot.TotalBytes)
	case "connections":
		return float64(len(snapshot.Connections))
	case "untracked_observations":
		return float64(snapshot.UntrackedObservations)
	}
	proto := model.Protocol(strings.TrimPrefix(metric, protocolMetricPrefix))
	return float64(snapshot.ProtocolCounts[proto])
}

var operators = map[string]func(value, threshold float64) bool{
	">":  func(v, t float64) bool { return v > t },
	"<":  func(v, t float64) bool { return v < t },
	"=":  func(v, t float64) bool { return v == t },
	">=": func(v, t float64) bool { return v >= t },
	"<=": func(v, t float64) bool { return v <= t },
}
