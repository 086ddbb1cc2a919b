package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthorityLookups tracks admin checks by the tier that answered them
	AuthorityLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adminguard_authority_lookups_total",
		Help: "Total number of admin checks by answering tier and result",
	}, []string{"tier", "result"})

	// AuthorityRefreshes tracks wholesale reloads of the in-process admin set
	AuthorityRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adminguard_authority_refreshes_total",
		Help: "Total number of in-process admin cache refreshes",
	}, []string{"source", "result"})

	// LocalAdmins is the size of the in-process admin set
	LocalAdmins = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adminguard_local_admins",
		Help: "Number of admins held in the in-process cache",
	})

	// RateLimitDecisions tracks rate limiter outcomes per action class
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adminguard_ratelimit_decisions_total",
		Help: "Total number of rate limit decisions",
	}, []string{"action", "result"})

	// AuditRecords tracks audit log writes
	AuditRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adminguard_audit_records_total",
		Help: "Total number of audit log writes by action and result",
	}, []string{"action", "result"})
)
