// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package mail

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/finlife/identity/internal/auth"
)

// ResetPath is appended to the base URL to build reset links.
const ResetPath = "/api/v1/password-reset/reset"

// Message kinds.
const (
	KindPasswordReset = "password_reset"
	KindWelcome       = "welcome"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Queue accepts messages for delivery.
type Queue interface {
	Enqueue(msg Message) error
}

// Notifier implements auth.Notifier by rendering templates and queueing them.
type Notifier struct {
	queue   Queue
	baseURL string
}

// NewNotifier creates a Notifier. baseURL is the public origin reset links
// point at.
func NewNotifier(queue Queue, baseURL string) (*Notifier, error) {
	if queue == nil {
		return nil, oops.Errorf("mail queue is required")
	}
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("base_url", baseURL).Errorf("reset base url is invalid")
	}
	return &Notifier{queue: queue, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// ResetLink returns the link carrying token.
func (n *Notifier) ResetLink(token string) string {
	return n.baseURL + ResetPath + "?token=" + url.QueryEscape(token)
}

// PasswordReset queues the reset email.
func (n *Notifier) PasswordReset(_ context.Context, p *auth.Principal, token string, expiresAt time.Time) error {
	body, err := render("password_reset.html", map[string]any{
		"Name":      displayName(p),
		"Link":      n.ResetLink(token),
		"ExpiresAt": expiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}
	return n.queue.Enqueue(Message{
		Kind:     KindPasswordReset,
		To:       p.Email,
		Subject:  "Reset your password",
		HTMLBody: body,
	})
}

// Welcome queues the welcome email with the initial password.
func (n *Notifier) Welcome(_ context.Context, p *auth.Principal, password string) error {
	body, err := render("welcome.html", map[string]any{
		"Name":     displayName(p),
		"Email":    p.Email,
		"Password": password,
	})
	if err != nil {
		return err
	}
	return n.queue.Enqueue(Message{
		Kind:     KindWelcome,
		To:       p.Email,
		Subject:  "Your new account",
		HTMLBody: body,
	})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", oops.Code("MAIL_TEMPLATE_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}

func displayName(p *auth.Principal) string {
	if name := p.Profile.FullName(); name != "" {
		return name
	}
	return p.Email
}

var _ auth.Notifier = (*Notifier)(nil)
