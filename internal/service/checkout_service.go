package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/payment"
)

// CheckoutRequest 买家发起的购买请求，不落库
type CheckoutRequest struct {
	Plan        string
	AmountCents int64
	Credits     int64
	BuyerID     string
}

// CheckoutService 支付网关客户端
type CheckoutService struct {
	cfg      *config.Config
	stripe   *payment.StripeClient
	accounts *AccountService
	log      *slog.Logger
}

func NewCheckoutService(cfg *config.Config, stripeClient *payment.StripeClient, accounts *AccountService, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		cfg:      cfg,
		stripe:   stripeClient,
		accounts: accounts,
		log:      logger.With("component", "checkout"),
	}
}

// CreateCheckoutSession 创建收银台会话并返回跳转地址
//
// 套餐在目录中存在时，金额与积分以服务端配置为准，忽略请求中的值，
// 防止篡改前端参数以低价换取大量积分。失败不做本地重试，由买家重新发起
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (string, error) {
	req.Plan = strings.TrimSpace(req.Plan)
	req.BuyerID = strings.TrimSpace(req.BuyerID)

	if plan, ok := s.cfg.FindPlan(req.Plan); ok {
		req.AmountCents = plan.AmountCents
		req.Credits = plan.Credits
	}

	if err := validateCheckout(req); err != nil {
		return "", err
	}

	// buyerId 要在回调时能被账户目录解析，这里提前拦截
	if _, err := s.accounts.Resolve(ctx, req.BuyerID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", fmt.Errorf("%w: 买家账户不存在", ErrInvalidCheckout)
		}
		return "", err
	}

	publicURL := strings.TrimRight(s.cfg.Server.PublicURL, "/")
	sess, err := s.stripe.CreateCheckoutSession(ctx, &payment.SessionParams{
		Plan:        req.Plan,
		AmountCents: req.AmountCents,
		Credits:     req.Credits,
		BuyerID:     req.BuyerID,
		SuccessURL:  publicURL + "/profile?success=true",
		CancelURL:   publicURL + "/?canceled=true",
	})
	if err != nil {
		s.log.Error("创建收银台会话失败", "buyer_id", req.BuyerID, "plan", req.Plan, "err", err)
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}

	s.log.Info("收银台会话已创建",
		"session_id", sess.ID,
		"buyer_id", req.BuyerID,
		"plan", req.Plan,
		"amount_cents", req.AmountCents,
		"credits", req.Credits,
	)
	return sess.URL, nil
}

func validateCheckout(req *CheckoutRequest) error {
	switch {
	case req.Plan == "":
		return fmt.Errorf("%w: plan 不能为空", ErrInvalidCheckout)
	case req.AmountCents <= 0:
		return fmt.Errorf("%w: 金额必须大于0", ErrInvalidCheckout)
	case req.Credits < 0:
		return fmt.Errorf("%w: credits 不能为负", ErrInvalidCheckout)
	case req.BuyerID == "":
		return fmt.Errorf("%w: buyer_id 不能为空", ErrInvalidCheckout)
	}
	return nil
}
