// Package metrics 定义履约链路的 Prometheus 指标，由 /metrics 暴露
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebhookEvents 按事件类型与处理结果统计 webhook
var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpay_webhook_events_total",
	Help: "Webhook events received, by event type and outcome.",
}, []string{"type", "outcome"})

// LedgerDuplicates 命中已履约分支的次数
var LedgerDuplicates = promauto.NewCounter(prometheus.CounterOpts{
	Name: "creditpay_ledger_duplicates_total",
	Help: "Ledger records skipped because the external id was already fulfilled.",
})

// CreditsGranted 累计发放的积分
var CreditsGranted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "creditpay_credits_granted_total",
	Help: "Credits added to accounts by the fulfillment pipeline.",
})

// GrantFailures 入账失败次数，按原因区分
var GrantFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpay_grant_failures_total",
	Help: "Credit grants that could not be applied, by reason.",
}, []string{"reason"})

// OutboxSends 消息投递结果
var OutboxSends = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpay_outbox_sends_total",
	Help: "Outbox messages delivered to Kafka, by result.",
}, []string{"result"})

// ReconciledGrants 补偿任务补发成功的笔数
var ReconciledGrants = promauto.NewCounter(prometheus.CounterOpts{
	Name: "creditpay_reconciled_grants_total",
	Help: "Recorded purchases whose credits were granted by the reconcile job.",
})
