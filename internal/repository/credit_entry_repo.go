package repository

import (
	"context"
	"errors"

	"creditpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreditEntryRepository struct {
	db *gorm.DB
}

func NewCreditEntryRepository(db *gorm.DB) *CreditEntryRepository {
	return &CreditEntryRepository{db: db}
}

// CreateIfAbsent 插入入账记录，external_id 已存在时不写入并返回 false
func (r *CreditEntryRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, entry *model.CreditEntry) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(entry)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// StampBalances 回填入账前后余额
func (r *CreditEntryRepository) StampBalances(ctx context.Context, tx *gorm.DB, id int64, before, after int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.CreditEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"balance_before": before,
			"balance_after":  after,
		}).Error
}

func (r *CreditEntryRepository) GetByExternalID(ctx context.Context, externalID string) (*model.CreditEntry, error) {
	var entry model.CreditEntry
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// SumByUserID 某用户累计入账积分，用于与账户余额对账
func (r *CreditEntryRepository) SumByUserID(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(credits), 0)").
		Scan(&sum).Error
	return sum, err
}
