package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表（佣金侧只消费交付/退货事件与行金额，下单流程由商城子系统负责）
type Order struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                          // 主键
	OrderNo         string         `gorm:"uniqueIndex;not null" json:"order_no"`                          // 订单编号
	UserID          uint           `gorm:"index;not null" json:"user_id"`                                 // 买家用户ID
	AffiliateUserID *uint          `gorm:"index" json:"affiliate_user_id,omitempty"`                      // 归因分销用户ID
	AffiliateCode   string         `gorm:"type:varchar(32);index" json:"affiliate_code,omitempty"`        // 归因推广码快照
	Status          string         `gorm:"index;not null" json:"status"`                                  // 订单状态
	Currency        string         `gorm:"not null;default:'MAD'" json:"currency"`                        // 币种
	TotalAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`     // 实付金额
	RefundedAmount  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"refunded_amount"`  // 已退款金额
	DeliveredAt     *time.Time     `gorm:"index" json:"delivered_at"`                                     // 交付时间
	ReturnedAt      *time.Time     `gorm:"index" json:"returned_at"`                                      // 退货时间
	CanceledAt      *time.Time     `gorm:"index" json:"canceled_at"`                                      // 取消时间
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                       // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
