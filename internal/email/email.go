// Package email sends documents to customers and falls back to a mailto link
// and copy-ready text when sending is unavailable.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Outcome reports what happened to a delivery attempt. When Sent is false
// the caller offers MailtoURL and CopyText to the user.
type Outcome struct {
	Sent      bool   `json:"sent"`
	MailtoURL string `json:"mailto_url,omitempty"`
	CopyText  string `json:"copy_text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Observer counts delivery outcomes; *metrics.Metrics satisfies it.
type Observer interface {
	ObserveEmail(outcome string)
}

// MailtoURL builds an RFC 6068 mailto link carrying the subject and body.
func MailtoURL(m Message) string {
	var q []string
	if m.Subject != "" {
		q = append(q, "subject="+escape(m.Subject))
	}
	if m.Body != "" {
		body := strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n")
		q = append(q, "body="+escape(body))
	}

	link := "mailto:" + strings.ReplaceAll(url.PathEscape(strings.TrimSpace(m.To)), "%40", "@")
	if len(q) > 0 {
		link += "?" + strings.Join(q, "&")
	}
	return link
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// CopyText is the manual-copy form of a message.
func CopyText(m Message) string {
	return fmt.Sprintf("To: %s\nSubject: %s\n\n%s", m.To, m.Subject, m.Body)
}

// Dispatcher tries the configured sender once and falls back to manual delivery.
type Dispatcher struct {
	sender   Sender
	log      *zap.Logger
	observer Observer
}

// NewDispatcher accepts a nil sender, in which case every delivery falls back.
func NewDispatcher(sender Sender, log *zap.Logger, observer Observer) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sender: sender, log: log, observer: observer}
}

// Deliver validates the recipient and attempts to send m. Only an invalid
// recipient is an error; send failures become a fallback Outcome.
func (d *Dispatcher) Deliver(ctx context.Context, m Message) (Outcome, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(m.To))
	if err != nil {
		d.observe("invalid")
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, m.To)
	}
	m.To = addr.Address

	if d.sender == nil {
		d.observe("fallback")
		return fallback(m, "email sending is not configured"), nil
	}

	if err := d.sender.Send(ctx, m); err != nil {
		d.log.Warn("email send failed, offering manual fallback",
			zap.String("to", m.To),
			zap.Error(err),
		)
		d.observe("failed")
		return fallback(m, "email could not be sent: "+err.Error()), nil
	}

	d.log.Info("email sent", zap.String("to", m.To), zap.String("subject", m.Subject))
	d.observe("sent")
	return Outcome{Sent: true}, nil
}

func (d *Dispatcher) observe(outcome string) {
	if d.observer != nil {
		d.observer.ObserveEmail(outcome)
	}
}

func fallback(m Message, reason string) Outcome {
	return Outcome{
		MailtoURL: MailtoURL(m),
		CopyText:  CopyText(m),
		Reason:    reason,
	}
}
