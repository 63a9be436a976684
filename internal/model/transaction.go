package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 购买流水实体
// ============================================================================

// Transaction 购买流水表
// 每个支付渠道单号（ExternalID）只会落一行，是履约幂等的唯一依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除：保证审计可追溯
// 2. ExternalID 唯一索引：重复回调不会产生第二行
// 3. 与 CreditEntry 按 ExternalID 对账：有流水无入账即为待补偿
type Transaction struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"external_id"` // 渠道单号（Stripe checkout session id）
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`                 // 实付金额（元）
	Plan       string          `gorm:"type:varchar(64);not null;default:''" json:"plan"`
	Credits    int64           `gorm:"not null;default:0" json:"credits"`
	BuyerID    string          `gorm:"type:varchar(64);index;not null;default:''" json:"buyer_id"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "purchase_transaction"
}
