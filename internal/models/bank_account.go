package models

import (
	"time"

	"gorm.io/gorm"
)

// BankAccount 分销用户收款银行账户
type BankAccount struct {
	ID        uint           `gorm:"primarykey" json:"id"`                      // 主键
	UserID    uint           `gorm:"not null;index" json:"user_id"`             // 用户ID
	Holder    string         `gorm:"not null" json:"holder"`                    // 开户人姓名
	BankName  string         `gorm:"not null" json:"bank_name"`                 // 银行名称
	RIB       string         `gorm:"type:varchar(64);not null" json:"rib"`      // 银行账号（RIB/IBAN）
	IsDefault bool           `gorm:"not null;default:false" json:"is_default"`  // 是否默认账户
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                   // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                            // 软删除时间
}

// TableName 指定表名
func (BankAccount) TableName() string {
	return "bank_accounts"
}
