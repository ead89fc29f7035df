package model

// Notifier delivers alert summaries produced by the alerter.
type Notifier interface {
	Send(subject, body string) error
}
