// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stocksaga"

var (
	// ConsumedMessages 按主题和处理结果 (ok / failed) 统计消费的消息
	ConsumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumed_messages_total",
		Help:      "Kafka messages consumed, by topic and result.",
	}, []string{"topic", "result"})

	// ReservationOutcomes 按结果 (success / rejected / system_error / duplicate) 统计预占结果
	ReservationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_outcomes_total",
		Help:      "Reservation requests processed, by result.",
	}, []string{"result"})

	LedgerConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_version_conflicts_total",
		Help:      "Optimistic version conflicts on stock ledger commits.",
	})

	Releases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_releases_total",
		Help:      "Release (compensation) requests processed, by result.",
	}, []string{"result"})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_alerts_raised_total",
		Help:      "Stock alerts created, by alert type.",
	}, []string{"type"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_alerts_suppressed_total",
		Help:      "Stock alerts suppressed by deduplication, by alert type.",
	}, []string{"type"})

	// AlertChecksDropped 变更队列已满而跳过的单商品检查，由周期扫描补齐
	AlertChecksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_alert_checks_dropped_total",
		Help:      "Per-change stock alert checks dropped because the change queue was full.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_state_transitions_total",
		Help:      "Order state transitions, by target state.",
	}, []string{"state"})

	DelayedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delayed_messages_published_total",
		Help:      "Delayed messages republished to their real topic, by delay level.",
	}, []string{"level"})
)
