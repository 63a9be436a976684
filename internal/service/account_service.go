package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"creditpay/internal/model"
	"creditpay/internal/repository"

	"gorm.io/gorm"
)

// AccountService 账户目录
// 履约链路只读取账户（Resolve），余额变动统一走 CreditService
type AccountService struct {
	accountRepo *repository.AccountRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
	}
}

// Resolve 按买家ID查找账户，不存在时返回 ErrAccountNotFound
func (s *AccountService) Resolve(ctx context.Context, userID string) (*model.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrAccountNotFound
	}
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
		return nil, wrapPersistence("查询账户失败", err)
	}
	return account, nil
}

func (s *AccountService) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := s.Resolve(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.CreditBalance, nil
}

// CreateAccount 开户，初始余额为 0
func (s *AccountService) CreateAccount(ctx context.Context, userID string) (*model.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id 不能为空", ErrInvalidAccount)
	}
	account := &model.Account{UserID: userID}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAccountDuplicate) {
			return nil, err
		}
		return nil, wrapPersistence("创建账户失败", err)
	}
	return account, nil
}
