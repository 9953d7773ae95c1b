package models

import (
	"time"
)

// WithdrawalItem 提现单佣金明细（金额为挂入时的快照，后续佣金调整不回写历史提现总额）
type WithdrawalItem struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                 // 主键
	WithdrawalID uint      `gorm:"not null;index:idx_withdrawal_item_unique,unique" json:"withdrawal_id"` // 提现单ID
	CommissionID uint      `gorm:"not null;index;index:idx_withdrawal_item_unique,unique" json:"commission_id"` // 佣金ID
	Amount       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`  // 金额快照
	CreatedAt    time.Time `gorm:"index" json:"created_at"`                              // 创建时间

	Commission Commission `gorm:"foreignKey:CommissionID" json:"commission,omitempty"` // 佣金记录
}

// TableName 指定表名
func (WithdrawalItem) TableName() string {
	return "withdrawal_items"
}
