package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

// sendMail matches smtp.SendMail.
type sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier implements the Notifier interface for sending emails.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
	send sendMail
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth, send: smtp.SendMail}
}

// Send sends an email to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var recipients []string
	for _, r := range strings.Split(n.cfg.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	msg := []byte("To: " + strings.Join(recipients, ", ") + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		strings.ReplaceAll(body, "\n", "\r\n"))

	if err := n.send(addr, n.auth, n.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(subject, body string) error {
	n.log.WithField("alert", subject).Warn(body)
	return nil
}

// New picks the email notifier when SMTP is configured, the log notifier otherwise.
func New(cfg config.SMTPConfig, log logrus.FieldLogger) model.Notifier {
	if cfg.Host != "" {
		return NewEmailNotifier(cfg)
	}
	return NewLogNotifier(log)
}
