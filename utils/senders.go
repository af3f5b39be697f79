package utils

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"
	"gopkg.in/gomail.v2"
)

// Mailer delivers a composed message. Implementations must not retry.
type Mailer interface {
	Name() string
	Send(ctx context.Context, msg *OutboundMessage) error
}

// GmailMailer sends through users.messages.send on behalf of the
// authenticated account.
type GmailMailer struct {
	service *gmail.Service
	userID  string
}

func NewGmailMailer(service *gmail.Service) *GmailMailer {
	return &GmailMailer{service: service, userID: "me"}
}

func (g *GmailMailer) Name() string { return "gmail" }

func (g *GmailMailer) Send(ctx context.Context, msg *OutboundMessage) error {
	raw, err := msg.Raw()
	if err != nil {
		return err
	}
	payload := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := g.service.Users.Messages.Send(g.userID, payload).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send to %s: %w", msg.To, err)
	}
	return nil
}

// SMTPMailer relays through an authenticated submission server.
type SMTPMailer struct {
	dialer *gomail.Dialer
}

func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	return &SMTPMailer{dialer: gomail.NewDialer(host, port, username, password)}
}

func (s *SMTPMailer) Name() string { return "smtp" }

func (s *SMTPMailer) Send(ctx context.Context, msg *OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(msg.Message); err != nil {
		return fmt.Errorf("smtp send to %s via %s: %w", msg.To, s.dialer.Host, err)
	}
	return nil
}

// DryRunMailer renders every message but never delivers it.
type DryRunMailer struct {
	Logger *logrus.Entry
}

func (d *DryRunMailer) Name() string { return "dry-run" }

func (d *DryRunMailer) Send(ctx context.Context, msg *OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := msg.Raw()
	if err != nil {
		return err
	}
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"to":    msg.To,
			"bytes": len(raw),
		}).Info("dry run, message not sent")
	}
	return nil
}
