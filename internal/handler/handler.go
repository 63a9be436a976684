package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/payment"
	"creditpay/internal/service"
	"creditpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService  *service.AccountService
	creditService   *service.CreditService
	ledgerService   *service.LedgerService
	checkoutService *service.CheckoutService
	webhookService  *service.WebhookService
	log             *slog.Logger
}

// NewHandler 创建处理器实例，rdb 可以为 nil
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *Handler {
	stripeClient := payment.NewStripeClient(&cfg.Stripe)
	accounts := service.NewAccountService(db)
	credits := service.NewCreditService(db, cfg, logger)
	ledger := service.NewLedgerService(db, rdb, cfg, credits, logger)

	return &Handler{
		accountService:  accounts,
		creditService:   credits,
		ledgerService:   ledger,
		checkoutService: service.NewCheckoutService(cfg, stripeClient, accounts, logger),
		webhookService:  service.NewWebhookService(cfg, stripeClient, ledger, logger),
		log:             logger.With("component", "handler"),
	}
}

// ============================================================
// 结账
// ============================================================

// CheckoutSessionRequest 结账请求，amount 单位为元
type CheckoutSessionRequest struct {
	Plan    string          `json:"plan" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
	Credits int64           `json:"credits"`
	BuyerID string          `json:"buyer_id" binding:"required"`
}

// CreateCheckoutSession 创建收银台会话并跳转
// POST /api/v1/checkout/session
//
// 成功时 303 跳转到渠道收银台；失败对买家可见，由买家自行重试
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	var req CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	cents := req.Amount.Shift(2)
	if !cents.IsInteger() {
		response.ParamError(c, "amount 最多两位小数")
		return
	}

	sessionURL, err := h.checkoutService.CreateCheckoutSession(c.Request.Context(), &service.CheckoutRequest{
		Plan:        req.Plan,
		AmountCents: cents.IntPart(),
		Credits:     req.Credits,
		BuyerID:     req.BuyerID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCheckout):
			response.BusinessError(c, response.CodeCheckoutInvalid, err.Error())
		case errors.Is(err, service.ErrGateway):
			response.BusinessError(c, response.CodeCheckoutFailed, "创建支付会话失败，请稍后重试")
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	c.Redirect(http.StatusSeeOther, sessionURL)
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询积分余额，同时返回入账合计用于对账
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	granted, balance, err := h.creditService.Audit(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			response.BusinessError(c, response.CodeAccountNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id":         userID,
		"credit_balance":  balance,
		"credits_granted": granted,
	})
}

// CreateAccountRequest 开户请求
type CreateAccountRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateAccount 开户
// POST /api/v1/account/create
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAccount):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrAccountDuplicate):
			response.BusinessError(c, response.CodeAccountExists, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, account)
}

// ============================================================
// 购买流水
// ============================================================

// ListTransactions 查询买家的购买流水
// GET /api/v1/transaction/list?buyer_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	buyerID := c.Query("buyer_id")
	if buyerID == "" {
		response.ParamError(c, "buyer_id 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	list, total, err := h.ledgerService.ListByBuyer(c.Request.Context(), buyerID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
