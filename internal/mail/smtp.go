// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package mail delivers account emails: an SMTP sender, a background
// dispatcher that retries failed sends, and the templates for password reset
// and welcome messages.
package mail

import (
	"context"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// Sender sends one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	ClientName string
}

// SMTPSender sends mail through an SMTP relay. A connection is opened per
// message.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender validates cfg and builds the client.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("from address is required")
	}

	opts := []gomail.Option{gomail.WithTLSPortPolicy(gomail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password))
	}
	if cfg.ClientName != "" {
		opts = append(opts, gomail.WithHELO(cfg.ClientName))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send delivers one message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return oops.Code("MAIL_ADDRESS_INVALID").With("from", s.from).Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("MAIL_ADDRESS_INVALID").With("to", to).Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("to", to).Wrap(err)
	}
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
