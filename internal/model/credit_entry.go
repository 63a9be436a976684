package model

import (
	"time"
)

const (
	CreditEntryTypePurchase = "PURCHASE" // 购买入账
)

// CreditEntry 积分入账表
// 同一个 ExternalID 只允许入账一次，内部重试与补偿任务都依赖这条唯一索引
type CreditEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	ExternalID    string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"external_id"`
	UserID        string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Credits       int64     `gorm:"not null" json:"credits"`
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditEntry) TableName() string {
	return "credit_entry"
}
