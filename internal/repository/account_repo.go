package repository

import (
	"context"
	"errors"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrAccountDuplicate = errors.New("账户已存在")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAccountDuplicate
	}
	return err
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (*model.Account, error) {
	return r.getByUserID(ctx, r.db, userID)
}

// GetByUserIDTx 在事务内读取账户（读到本事务已写入的余额）
func (r *AccountRepository) GetByUserIDTx(ctx context.Context, tx *gorm.DB, userID string) (*model.Account, error) {
	return r.getByUserID(ctx, tx, userID)
}

func (r *AccountRepository) getByUserID(ctx context.Context, db *gorm.DB, userID string) (*model.Account, error) {
	var account model.Account
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// IncreaseCredits 原子增加积分
//
// 【关键点】单条 UPDATE ... SET credit_balance = credit_balance + ? 完成读改写，
// 不同交易对同一账户的并发加款由存储层串行化，不会丢更新。
// version 同时 +1，保证即使 credits = 0 也有影响行，借此区分"账户不存在"
func (r *AccountRepository) IncreaseCredits(ctx context.Context, tx *gorm.DB, userID string, credits int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"credit_balance": gorm.Expr("credit_balance + ?", credits),
			"version":        gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}
