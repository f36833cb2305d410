// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for authentication and reset metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeDisabled           = "disabled"
	OutcomeNotFound           = "not_found"
	OutcomeBlocked            = "blocked"
	OutcomeEmailFailed        = "email_failed"
	OutcomeError              = "error"
)

// Authentications counts authenticate calls by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Authentications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_authentications_total",
		Help: "Total number of authentication attempts by outcome",
	},
	[]string{"outcome"},
)

// Lockouts counts accounts locked by failed logins.
var Lockouts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "identity_lockouts_total",
		Help: "Total number of accounts locked after too many failed logins",
	},
)

// ResetRequests counts password reset requests by outcome.
var ResetRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_reset_requests_total",
		Help: "Total number of password reset requests by outcome",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Authentications)
	reg.MustRegister(Lockouts)
	reg.MustRegister(ResetRequests)
}

// RecordAuthentication increments the authentication counter for outcome.
func RecordAuthentication(outcome string) {
	Authentications.WithLabelValues(outcome).Inc()
}

// RecordLockout increments the lockout counter.
func RecordLockout() {
	Lockouts.Inc()
}

// RecordResetRequest increments the reset request counter for outcome.
func RecordResetRequest(outcome string) {
	ResetRequests.WithLabelValues(outcome).Inc()
}
