package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GmailRequests counts provider calls by operation and outcome
// ("ok", "unauthorized", "not_found", "rate_limited", "circuit_open", "error").
var GmailRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: serviceNamespace,
	Subsystem: "gmail",
	Name:      "requests_total",
	Help:      "Gmail API calls by operation and outcome.",
}, []string{"op", "outcome"})

// TokenRefreshes counts OAuth refresh attempts by result.
var TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: serviceNamespace,
	Subsystem: "gmail",
	Name:      "token_refreshes_total",
	Help:      "Gmail access token refreshes by result.",
}, []string{"result"})

// SuperActions counts finished super action jobs by kind and final status.
var SuperActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: serviceNamespace,
	Name:      "super_actions_total",
	Help:      "Super action jobs by kind and final status.",
}, []string{"action", "status"})
