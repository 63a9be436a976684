package handler

import (
	"errors"
	"io"
	"net/http"

	"creditpay/internal/infrastructure/payment"
	"creditpay/internal/service"
	"creditpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// maxWebhookBodyBytes 渠道回调报文上限
const maxWebhookBodyBytes = 64 << 10

// StripeWebhook 支付渠道回调入口
// POST /api/v1/webhooks/stripe
//
// 【关键点】状态码决定渠道是否重投：
//  1. 签名校验失败 -> 400，不做任何处理
//  2. 流水未能落库 -> 500，依赖渠道重投
//  3. 流水已落库（无论积分是否发放）-> 200，重投只会命中重复分支，没有意义
//  4. 不关心的事件类型 -> 200 空响应
func (h *Handler) StripeWebhook(c *gin.Context) {
	// 必须使用原始报文验签，不能先反序列化
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.log.Warn("读取回调报文失败", "err", err)
		response.Webhook(c, http.StatusBadRequest, response.WebhookAck{Error: "无法读取回调报文"})
		return
	}

	res, err := h.webhookService.Handle(c.Request.Context(), body, c.GetHeader(payment.SignatureHeader))
	switch {
	case errors.Is(err, service.ErrVerification):
		response.Webhook(c, http.StatusBadRequest, response.WebhookAck{Error: "Webhook signature verification failed"})
	case service.IsRetryable(res, err):
		h.log.Error("购买流水未能落库，等待渠道重投", "event_id", eventID(res), "err", err)
		response.Webhook(c, http.StatusInternalServerError, response.WebhookAck{Error: "temporarily unable to record payment"})
	case err != nil && (res == nil || res.Record == nil):
		// 不可重试且流水未落库（例如事件连渠道单号都没有），重投也无法处理
		h.log.Error("支付事件未能记录", "event_id", eventID(res), "err", err)
		response.Webhook(c, http.StatusOK, response.WebhookAck{Message: "payment not recorded", Error: err.Error()})
	case err != nil:
		response.Webhook(c, http.StatusOK, response.WebhookAck{
			Message:     "payment recorded, credits pending",
			Error:       err.Error(),
			Transaction: res.Record.Transaction,
		})
	case !res.Handled:
		c.Status(http.StatusOK)
	default:
		response.Webhook(c, http.StatusOK, response.WebhookAck{Message: "OK", Transaction: res.Record.Transaction})
	}
}

func eventID(res *service.WebhookResult) string {
	if res == nil {
		return ""
	}
	return res.EventID
}
