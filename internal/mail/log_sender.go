// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package mail

import (
	"context"
	"log/slog"
)

// LogSender logs messages instead of sending them. Used when no SMTP host
// is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the recipient and subject. The body is not logged since it can
// carry reset tokens and initial passwords.
func (s *LogSender) Send(ctx context.Context, to, subject, _ string) error {
	s.logger.InfoContext(ctx, "mail delivery disabled, message dropped",
		"to", to,
		"subject", subject)
	return nil
}
