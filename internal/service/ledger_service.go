package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/infrastructure/metrics"
	"creditpay/internal/model"
	"creditpay/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecordRequest 待记录的购买
type RecordRequest struct {
	ExternalID string
	Amount     decimal.Decimal
	Plan       string
	Credits    int64
	BuyerID    string
}

// RecordResult 记录结果
//
// Transaction 仅供审计与响应展示，余额请以账户为准
type RecordResult struct {
	Transaction *model.Transaction
	Duplicate   bool  // 渠道单号此前已记录，本次未写入也未发放积分
	Granted     bool  // 本次成功发放了积分
	NewBalance  int64 // Granted 为 true 时有效
}

// LedgerService 购买流水账本
type LedgerService struct {
	cfg             *config.Config
	redisClient     *redis.Client
	transactionRepo *repository.TransactionRepository
	credits         *CreditService
	log             *slog.Logger
}

// NewLedgerService redisClient 可以为 nil，此时不加分布式锁，仅依赖唯一索引
func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, credits *CreditService, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		cfg:             cfg,
		redisClient:     redisClient,
		transactionRepo: repository.NewTransactionRepository(db),
		credits:         credits,
		log:             logger.With("component", "ledger"),
	}
}

// Record 记录一笔购买并发放积分，保证每个渠道单号只履约一次
//
// 返回值：
//   - 首次记录且发放成功：result.Granted = true, err = nil
//   - 重复单号：result.Duplicate = true, err = nil（不再发放）
//   - 流水未能写入：result = nil, err 为 ErrPersistence（渠道可重投）
//   - 流水已写入但发放失败：result.Transaction 非空，err 为 ErrAccountNotFound 或
//     ErrPersistence；此时流水与入账记录不一致，由补偿任务或人工处理
func (s *LedgerService) Record(ctx context.Context, req *RecordRequest) (*RecordResult, error) {
	if req.ExternalID == "" {
		return nil, fmt.Errorf("%w: external_id 为空", ErrInvalidGrant)
	}
	if req.Credits < 0 {
		return nil, fmt.Errorf("%w: credits=%d", ErrInvalidGrant, req.Credits)
	}

	unlock := s.acquire(ctx, req.ExternalID)
	defer unlock()

	trans := &model.Transaction{
		ExternalID: req.ExternalID,
		Amount:     req.Amount,
		Plan:       req.Plan,
		Credits:    req.Credits,
		BuyerID:    req.BuyerID,
	}
	created, err := s.transactionRepo.CreateIfAbsent(ctx, trans)
	if err != nil {
		return nil, wrapPersistence("写入购买流水失败", err)
	}

	if !created {
		existing, err := s.transactionRepo.GetByExternalID(ctx, req.ExternalID)
		if err != nil {
			return nil, wrapPersistence("查询购买流水失败", err)
		}
		metrics.LedgerDuplicates.Inc()
		s.log.Info("渠道单号已履约，跳过", "external_id", req.ExternalID, "transaction_id", existing.ID)
		return &RecordResult{Transaction: existing, Duplicate: true}, nil
	}

	s.log.Info("购买流水已记录",
		"external_id", trans.ExternalID,
		"buyer_id", trans.BuyerID,
		"plan", trans.Plan,
		"amount", trans.Amount.StringFixed(2),
		"credits", trans.Credits,
	)

	result := &RecordResult{Transaction: trans}
	grant, err := s.applyWithRetry(ctx, Grant{
		ExternalID: trans.ExternalID,
		BuyerID:    trans.BuyerID,
		Credits:    trans.Credits,
	})
	if err != nil {
		reason := "persistence"
		if errors.Is(err, ErrAccountNotFound) {
			reason = "account_not_found"
		}
		metrics.GrantFailures.WithLabelValues(reason).Inc()
		s.log.Error("流水已记录但积分未发放，等待补偿",
			"external_id", trans.ExternalID,
			"buyer_id", trans.BuyerID,
			"credits", trans.Credits,
			"err", err,
		)
		return result, err
	}

	result.Granted = true
	result.NewBalance = grant.NewBalance
	return result, nil
}

// applyWithRetry 流水已落库后，渠道重投只会命中重复分支，
// 所以入账必须在这里有限次重试，不能依赖渠道重投
func (s *LedgerService) applyWithRetry(ctx context.Context, g Grant) (*GrantResult, error) {
	attempts := s.cfg.Business.MaxRetryCount
	if attempts < 1 {
		attempts = 1
	}
	interval := s.cfg.Business.RetryInterval()

	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := s.credits.Apply(ctx, g)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, ErrPersistence) {
			return nil, err
		}

		s.log.Warn("积分入账失败，准备重试", "external_id", g.ExternalID, "attempt", i+1, "err", err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, wrapPersistence("积分入账中止", ctx.Err())
		case <-time.After(interval * time.Duration(i+1)):
		}
	}
	return nil, lastErr
}

// acquire 获取履约锁，Redis 不可用或等待超时都不阻断履约
func (s *LedgerService) acquire(ctx context.Context, externalID string) func() {
	if s.redisClient == nil {
		return func() {}
	}

	l := lock.NewFulfillLock(s.redisClient, externalID, s.cfg.Business.LockTTL())
	if err := l.Lock(ctx, 50*time.Millisecond, 100); err != nil {
		s.log.Warn("获取履约锁失败，仅依赖唯一索引", "external_id", externalID, "err", err)
		return func() {}
	}
	return func() {
		// 请求上下文可能已取消，释放锁使用独立的短超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.Unlock(unlockCtx); err != nil {
			s.log.Warn("释放履约锁失败", "key", l.Key(), "err", err)
		}
	}
}

// ListByBuyer 分页查询买家的购买流水
func (s *LedgerService) ListByBuyer(ctx context.Context, buyerID string, page, pageSize int) ([]*model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	list, total, err := s.transactionRepo.ListByBuyerID(ctx, buyerID, page, pageSize)
	if err != nil {
		return nil, 0, wrapPersistence("查询购买流水失败", err)
	}
	return list, total, nil
}
