// Package metrics defines all custom Prometheus metrics for the identity
// API. It is the single source of truth for metric names, labels, and help
// strings; metrics register themselves with the default registry via
// promauto at package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// LoginsTotal counts login attempts by outcome.
// Label:
//   - result: "success", "failure" (bad username/password/disabled, collapsed),
//     or "throttled"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, labelled by result.",
	},
	[]string{"result"},
)

// TokensIssuedTotal counts signed tokens handed out.
// Label:
//   - type: "access" or "refresh"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of tokens issued, labelled by token type.",
	},
	[]string{"type"},
)

// RefreshExchangesTotal counts successful refresh-token exchanges.
var RefreshExchangesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_exchanges_total",
		Help:      "Total number of refresh tokens successfully exchanged for access tokens.",
	},
)

// RegistrationsTotal counts successfully created user accounts.
var RegistrationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of user accounts created.",
	},
)

// PasswordVerifyDuration measures the bcrypt comparison cost per login
// attempt. Useful for sizing the work factor: the p50 here is the price every
// legitimate login pays.
var PasswordVerifyDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "password_verify_duration_seconds",
		Help:      "Duration of bcrypt password verification per login attempt.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
)
