package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"creditpay/internal/config"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader Stripe 回调签名头
const SignatureHeader = "Stripe-Signature"

// 回调元数据字段名，结账时写入、回调时原样带回
const (
	MetadataPlan    = "plan"
	MetadataCredits = "credits"
	MetadataBuyerID = "buyerId"
)

var ErrMissingSessionURL = errors.New("渠道未返回收银台地址")

// SessionParams 创建收银台会话所需参数
type SessionParams struct {
	Plan        string
	AmountCents int64
	Credits     int64
	BuyerID     string
	SuccessURL  string
	CancelURL   string
}

// Session 渠道侧收银台会话
type Session struct {
	ID  string
	URL string
}

// StripeClient 支付渠道客户端
// 持有独立的 API 实例，不修改 stripe.Key 等包级全局状态
type StripeClient struct {
	api           *client.API
	webhookSecret string
	currency      string
	tolerance     time.Duration
}

// NewStripeClient 根据配置创建客户端，APIURL 非空时请求发往该地址（测试/代理）
func NewStripeClient(cfg *config.StripeConfig) *StripeClient {
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	tolerance := cfg.Tolerance()
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripeClient{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		tolerance:     tolerance,
	}
}

// CreateCheckoutSession 创建一次性支付的收银台会话
//
// 元数据 {plan, credits, buyerId} 是回调时唯一能带回业务意图的通道
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p *SessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Plan),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata(MetadataPlan, p.Plan)
	params.AddMetadata(MetadataCredits, strconv.FormatInt(p.Credits, 10))
	params.AddMetadata(MetadataBuyerID, p.BuyerID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("创建收银台会话失败: %w", err)
	}
	if sess.URL == "" {
		return nil, ErrMissingSessionURL
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// ConstructEvent 校验签名并解析回调事件
//
// payload 必须是原始请求体，任何重新序列化都会导致签名校验失败
func (c *StripeClient) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}
