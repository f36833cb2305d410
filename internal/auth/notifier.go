// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"
	"time"
)

// Notifier delivers account emails out of band. Implementations enqueue and
// return; an error means the message was not accepted for delivery.
type Notifier interface {
	// PasswordReset sends the reset link carrying token to p.
	PasswordReset(ctx context.Context, p *Principal, token string, expiresAt time.Time) error

	// Welcome sends a newly provisioned principal its initial password.
	Welcome(ctx context.Context, p *Principal, password string) error
}
