// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package token

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Token check results.
const (
	ResultValid     = "valid"
	ResultMalformed = "malformed"
	ResultExpired   = "expired"
	ResultRevoked   = "revoked"
	ResultError     = "error"
)

// TokenChecks counts bearer token checks by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var TokenChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_token_checks_total",
		Help: "Total number of bearer token checks by result",
	},
	[]string{"result"},
)

// RegisterMetrics registers token metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(TokenChecks)
}

// RecordTokenCheck increments the check counter for result.
func RecordTokenCheck(result string) {
	TokenChecks.WithLabelValues(result).Inc()
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return ResultExpired
	case errors.Is(err, ErrMalformed):
		return ResultMalformed
	case errors.Is(err, ErrRevoked):
		return ResultRevoked
	default:
		return ResultError
	}
}
