// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package mail

import "github.com/prometheus/client_golang/prometheus"

// Delivery status labels.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Deliveries counts account emails by final status.
var Deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_reset_emails_total",
		Help: "Total number of account emails by delivery status",
	},
	[]string{"status"},
)

// RegisterMetrics registers mail metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Deliveries)
}
