package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表（仅保留佣金计算所需的快照字段）
type Product struct {
	ID                    uint           `gorm:"primarykey" json:"id"`                                              // 主键
	Slug                  string         `gorm:"uniqueIndex;not null" json:"slug"`                                  // 唯一标识
	Title                 string         `gorm:"not null" json:"title"`                                             // 商品标题
	Price                 Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price"`                // 售价
	IsCommissionable      bool           `gorm:"not null;default:true;index" json:"is_commissionable"`              // 是否参与分销
	CommissionRatePercent Money          `gorm:"type:decimal(10,2);not null;default:0" json:"commission_rate"`      // 佣金比例（百分比，0 表示用全局默认）
	CommissionFixedAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"commission_fixed"`     // 固定单件佣金（大于 0 时优先于比例）
	CreatedAt             time.Time      `gorm:"index" json:"created_at"`                                           // 创建时间
	UpdatedAt             time.Time      `gorm:"index" json:"updated_at"`                                           // 更新时间
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`                                                    // 软删除时间
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
