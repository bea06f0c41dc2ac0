package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WithdrawRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trude",
		Name:      "withdraw_request_total",
		Help:      "Total withdrawal requests by kind/mode/result.",
	}, []string{"kind", "mode", "result"})

	WithdrawFinalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trude",
		Name:      "withdraw_finalize_total",
		Help:      "Total withdrawal finalizations by kind/result.",
	}, []string{"kind", "result"})

	PolicyRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trude",
		Name:      "policy_reject_total",
		Help:      "Auto-mode policy rejections by reason.",
	}, []string{"reason"})

	RevenueQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trude",
		Name:      "revenue_query_duration_seconds",
		Help:      "Revenue aggregation latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
	}, []string{"query", "status"})

	AuditAppendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trude",
		Name:      "audit_append_total",
		Help:      "Audit log rows appended by action/status.",
	}, []string{"action", "status"})
)
