package repository

import (
	"context"
	"errors"
	"time"

	"creditpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTransactionNotFound = errors.New("购买流水不存在")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CreateIfAbsent 仅当 external_id 不存在时插入
//
// 返回 created=false 表示该渠道单号已经落过流水，trans 不会被回填
func (r *TransactionRepository) CreateIfAbsent(ctx context.Context, trans *model.Transaction) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(trans)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).Count(&total).Error
	return total, err
}

func (r *TransactionRepository) ListByBuyerID(ctx context.Context, buyerID string, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("buyer_id = ?", buyerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ListUngranted 查询已落流水但没有对应入账记录的购买
//
// 这就是"已记录未履约"状态，补偿任务据此重新入账
func (r *TransactionRepository) ListUngranted(ctx context.Context, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Table(model.Transaction{}.TableName()+" AS t").
		Select("t.*").
		Joins("LEFT JOIN "+model.CreditEntry{}.TableName()+" AS e ON e.external_id = t.external_id").
		Where("e.id IS NULL AND t.created_at < ?", before).
		Order("t.created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
