package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 评审决定计数
	ReviewDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_decision_total",
			Help: "Total number of reviewer decisions by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: recorded / 错误 kind
	)

	// 阶段流转计数
	StageTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_stage_transition_total",
			Help: "Total number of stage transitions",
		},
		[]string{"transition"}, // opened / approved / reset / all_approved / finalized
	)

	// 打开时没有评审人的阶段
	ZeroQuorumStageCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "review_zero_quorum_stage_total",
			Help: "Stages opened with no assigned reviewers",
		},
	)

	// 评审决定处理耗时（秒）
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_decision_duration_seconds",
			Help:    "Transition engine decision latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"action"},
	)

	// Outbox 发布结果
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Outbox events published to MQ",
		},
		[]string{"routing_key", "status"}, // status: sent / failed
	)

	// 通知投递结果
	NotificationDeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_total",
			Help: "Notification deliveries by event kind, channel and status",
		},
		[]string{"event", "channel", "status"}, // status: sent / failed / skipped
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Database queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// IncrementDecision 记录一次评审决定
func IncrementDecision(action, outcome string) {
	ReviewDecisionCount.WithLabelValues(action, outcome).Inc()
}

// IncrementStageTransition 记录一次阶段流转
func IncrementStageTransition(transition string) {
	StageTransitionCount.WithLabelValues(transition).Inc()
}

// IncrementZeroQuorumStage 记录一次零评审人阶段的打开
func IncrementZeroQuorumStage() {
	ZeroQuorumStageCount.Inc()
}

// RecordDecisionDuration 记录评审决定耗时
func RecordDecisionDuration(action string, duration time.Duration) {
	DecisionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// IncrementOutboxPublish 记录 outbox 发布结果
func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}

// IncrementNotificationDelivery 记录通知投递结果
func IncrementNotificationDelivery(event, channel, status string) {
	NotificationDeliveryCount.WithLabelValues(event, channel, status).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
