package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/metrics"
	"creditpay/internal/infrastructure/payment"

	"github.com/stripe/stripe-go/v76"
)

// WebhookResult webhook 处理结果，由 HTTP 层决定响应码
type WebhookResult struct {
	EventID   string
	EventType string
	Handled   bool // false 表示事件类型不关心，直接确认
	Checkout  CompletedCheckout
	Record    *RecordResult // 流水写入后非空
}

// WebhookService webhook 接收器（信任边界）
type WebhookService struct {
	cfg    *config.Config
	stripe *payment.StripeClient
	ledger *LedgerService
	log    *slog.Logger
}

func NewWebhookService(cfg *config.Config, stripeClient *payment.StripeClient, ledger *LedgerService, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		cfg:    cfg,
		stripe: stripeClient,
		ledger: ledger,
		log:    logger.With("component", "webhook"),
	}
}

// Handle 处理一次渠道回调
//
//  1. 用原始报文与签名头校验来源，失败返回 ErrVerification，不做任何处理
//  2. 只处理 checkout.session.completed，其他类型直接确认
//  3. 宽松解析履约字段，缺失字段取默认值，绝不因字段问题拒收
//  4. 交给账本记录并发放积分
func (s *WebhookService) Handle(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	event, err := s.stripe.ConstructEvent(rawBody, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		s.log.Warn("回调签名校验失败", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		metrics.WebhookEvents.WithLabelValues(result.EventType, "ignored").Inc()
		s.log.Debug("忽略不关心的事件", "event_id", event.ID, "type", event.Type)
		return result, nil
	}
	result.Handled = true

	var raw []byte
	if event.Data != nil {
		raw = event.Data.Raw
	}
	checkout := ParseCompletedCheckout(raw, event.ID)
	if !checkout.Valid {
		s.log.Warn("支付事件字段不完整，按默认值记录",
			"event_id", event.ID,
			"external_id", checkout.ExternalID,
			"defaulted", checkout.Defaulted,
		)
	}
	checkout.Credits = s.authoritativeCredits(checkout)
	result.Checkout = checkout

	rec, err := s.ledger.Record(ctx, &RecordRequest{
		ExternalID: checkout.ExternalID,
		Amount:     checkout.Amount(),
		Plan:       checkout.Plan,
		Credits:    checkout.Credits,
		BuyerID:    checkout.BuyerID,
	})
	result.Record = rec

	outcome := "granted"
	switch {
	case err != nil && rec == nil:
		outcome = "not_recorded"
	case err != nil:
		outcome = "recorded_ungranted"
	case rec.Duplicate:
		outcome = "duplicate"
	}
	metrics.WebhookEvents.WithLabelValues(result.EventType, outcome).Inc()

	return result, err
}

// authoritativeCredits 套餐在目录中时以服务端配置为准，元数据仅作参考
func (s *WebhookService) authoritativeCredits(c CompletedCheckout) int64 {
	plan, ok := s.cfg.FindPlan(c.Plan)
	if !ok {
		return c.Credits
	}
	if plan.Credits != c.Credits || plan.AmountCents != c.AmountTotalCents {
		s.log.Warn("支付事件与套餐配置不一致，以套餐为准",
			"external_id", c.ExternalID,
			"plan", c.Plan,
			"metadata_credits", c.Credits,
			"plan_credits", plan.Credits,
			"amount_total", c.AmountTotalCents,
			"plan_amount", plan.AmountCents,
		)
	}
	return plan.Credits
}

// IsRetryable 流水尚未落库的存储错误，可以交给渠道重投；
// 流水已落库后重投只会命中重复分支，必须返回成功
func IsRetryable(res *WebhookResult, err error) bool {
	return err != nil && (res == nil || res.Record == nil) && errors.Is(err, ErrPersistence)
}
