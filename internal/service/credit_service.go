package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/metrics"
	"creditpay/internal/model"
	"creditpay/internal/repository"
	"creditpay/pkg/idgen"

	"gorm.io/gorm"
)

// Grant 一次积分发放
// ExternalID 即渠道单号，同一个单号最多发放一次
type Grant struct {
	ExternalID string
	BuyerID    string
	Credits    int64
}

// GrantResult 发放结果
type GrantResult struct {
	EntryNo        string
	NewBalance     int64
	AlreadyApplied bool // 该单号此前已经入账，本次未做任何变动
}

// CreditService 积分账户更新器
type CreditService struct {
	db          *gorm.DB
	cfg         *config.Config
	accounts    *AccountService
	accountRepo *repository.AccountRepository
	entryRepo   *repository.CreditEntryRepository
	outboxRepo  *repository.OutboxRepository
	log         *slog.Logger
}

func NewCreditService(db *gorm.DB, cfg *config.Config, logger *slog.Logger) *CreditService {
	return &CreditService{
		db:          db,
		cfg:         cfg,
		accounts:    NewAccountService(db),
		accountRepo: repository.NewAccountRepository(db),
		entryRepo:   repository.NewCreditEntryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		log:         logger.With("component", "credit"),
	}
}

var errAlreadyApplied = errors.New("already applied")

// Apply 为买家原子地增加积分
//
// 【关键点】一个数据库事务内完成：
//  1. 写入入账记录（external_id 唯一），已存在说明之前发放过，直接返回当前余额
//  2. credit_balance = credit_balance + ?（存储层原子加法）
//  3. 读回新余额并回填入账记录
//  4. 写入 credit.granted 待投递消息
//
// 因为第 1 步的唯一索引，本方法可以被安全地重复调用（内部重试、补偿任务）
func (s *CreditService) Apply(ctx context.Context, g Grant) (*GrantResult, error) {
	if g.Credits < 0 {
		return nil, fmt.Errorf("%w: credits=%d", ErrInvalidGrant, g.Credits)
	}
	if g.ExternalID == "" {
		return nil, fmt.Errorf("%w: external_id 为空", ErrInvalidGrant)
	}

	// 先经账户目录确认买家存在，积分绝不能发给不存在的账户
	if _, err := s.accounts.Resolve(ctx, g.BuyerID); err != nil {
		return nil, err
	}

	result := &GrantResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &model.CreditEntry{
			EntryNo:    idgen.GenerateEntryNo(),
			ExternalID: g.ExternalID,
			UserID:     g.BuyerID,
			Credits:    g.Credits,
			Type:       model.CreditEntryTypePurchase,
		}
		created, err := s.entryRepo.CreateIfAbsent(ctx, tx, entry)
		if err != nil {
			return fmt.Errorf("写入入账记录失败: %w", err)
		}
		if !created {
			return errAlreadyApplied
		}

		if err := s.accountRepo.IncreaseCredits(ctx, tx, g.BuyerID, g.Credits); err != nil {
			return err
		}

		account, err := s.accountRepo.GetByUserIDTx(ctx, tx, g.BuyerID)
		if err != nil {
			return err
		}

		before := account.CreditBalance - g.Credits
		if err := s.entryRepo.StampBalances(ctx, tx, entry.ID, before, account.CreditBalance); err != nil {
			return fmt.Errorf("回填入账余额失败: %w", err)
		}

		payload, err := json.Marshal(model.CreditGrantedPayload{
			EntryNo:      entry.EntryNo,
			ExternalID:   g.ExternalID,
			UserID:       g.BuyerID,
			Credits:      g.Credits,
			BalanceAfter: account.CreditBalance,
			GrantedAt:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		outboxMsg := &model.OutboxMessage{
			MessageKey: g.ExternalID,
			Topic:      s.cfg.Kafka.Topic.CreditGranted,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		result.EntryNo = entry.EntryNo
		result.NewBalance = account.CreditBalance
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errAlreadyApplied):
		return s.alreadyApplied(ctx, g)
	case errors.Is(err, repository.ErrAccountNotFound):
		// 事务内账户消失（被并发删除），与 Resolve 失败同等处理
		return nil, err
	default:
		return nil, wrapPersistence("积分入账失败", err)
	}

	metrics.CreditsGranted.Add(float64(g.Credits))
	s.log.Info("积分入账成功",
		"external_id", g.ExternalID,
		"user_id", g.BuyerID,
		"credits", g.Credits,
		"balance", result.NewBalance,
	)
	return result, nil
}

func (s *CreditService) alreadyApplied(ctx context.Context, g Grant) (*GrantResult, error) {
	entry, err := s.entryRepo.GetByExternalID(ctx, g.ExternalID)
	if err != nil {
		return nil, wrapPersistence("查询入账记录失败", err)
	}
	balance, err := s.accounts.GetBalance(ctx, g.BuyerID)
	if err != nil {
		return nil, err
	}

	s.log.Info("积分已入账，跳过", "external_id", g.ExternalID, "user_id", g.BuyerID)
	res := &GrantResult{NewBalance: balance, AlreadyApplied: true}
	if entry != nil {
		res.EntryNo = entry.EntryNo
	}
	return res, nil
}

// Audit 返回用户入账合计与当前余额，二者之差即为其他链路的消耗
func (s *CreditService) Audit(ctx context.Context, userID string) (granted int64, balance int64, err error) {
	balance, err = s.accounts.GetBalance(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	granted, err = s.entryRepo.SumByUserID(ctx, userID)
	if err != nil {
		return 0, 0, wrapPersistence("汇总入账失败", err)
	}
	return granted, balance, nil
}
