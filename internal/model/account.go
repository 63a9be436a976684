package model

import (
	"time"
)

// Account 用户积分账户表
// 账户本身由账户目录维护，履约链路只会对 CreditBalance 做原子加法
type Account struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // 业务方用户ID（即 buyerId）
	CreditBalance int64     `gorm:"not null;default:0" json:"credit_balance"`             // 积分余额，恒 >= 0
	Version       int       `gorm:"not null;default:0" json:"version"`                    // 每次变动 +1，保证更新必有影响行
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
