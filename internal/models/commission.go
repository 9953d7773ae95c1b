package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// CommissionAdjustment 佣金调整审计记录（只追加，不覆盖）
type CommissionAdjustment struct {
	OriginalAmount string    `json:"original_amount"` // 调整前金额
	NewAmount      string    `json:"new_amount"`      // 调整后金额
	Difference     string    `json:"difference"`      // 差额（new - original）
	Reason         string    `json:"reason"`          // 调整原因
	ActorAdminID   uint      `json:"actor_admin_id"`  // 操作管理员ID
	PostPayment    bool      `json:"post_payment"`    // 是否打款后的账务更正
	AdjustedAt     time.Time `json:"adjusted_at"`     // 调整时间
}

// CommissionAdjustmentList 佣金调整审计列表
type CommissionAdjustmentList []CommissionAdjustment

// Value 实现 driver.Valuer 接口
func (l CommissionAdjustmentList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口
func (l *CommissionAdjustmentList) Scan(value interface{}) error {
	if value == nil {
		*l = CommissionAdjustmentList{}
		return nil
	}
	bytes, ok := normalizeJSONBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Commission 分销佣金记录
type Commission struct {
	ID               uint                     `gorm:"primarykey" json:"id"`                                          // 主键
	UserID           uint                     `gorm:"not null;index" json:"user_id"`                                 // 分销用户ID
	OrderID          uint                     `gorm:"not null;index" json:"order_id"`                                // 订单ID
	OrderItemID      *uint                    `gorm:"uniqueIndex" json:"order_item_id,omitempty"`                    // 订单项ID（按行计佣时唯一）
	Currency         string                   `gorm:"not null;default:'MAD'" json:"currency"`                        // 币种
	BaseAmount       Money                    `gorm:"type:decimal(20,2);not null;default:0" json:"base_amount"`      // 佣金基数金额
	RatePercent      Money                    `gorm:"type:decimal(10,2);not null;default:0" json:"rate_percent"`     // 佣金比例（百分比）
	FixedAmount      Money                    `gorm:"type:decimal(20,2);not null;default:0" json:"fixed_amount"`     // 固定单件佣金（大于 0 时生效）
	Amount           Money                    `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`           // 佣金金额
	Status           string                   `gorm:"type:varchar(32);not null;index" json:"status"`                 // 佣金状态
	EligibleDueAt    *time.Time               `gorm:"index" json:"eligible_due_at,omitempty"`                        // 冷静期到期时间
	EligibleAt       *time.Time               `gorm:"index" json:"eligible_at,omitempty"`                            // 转可提现时间
	ApprovedAt       *time.Time               `gorm:"index" json:"approved_at,omitempty"`                            // 审核通过时间
	PaidAt           *time.Time               `gorm:"index" json:"paid_at,omitempty"`                                // 打款完成时间
	PaidWithdrawalID *uint                    `gorm:"index" json:"paid_withdrawal_id,omitempty"`                     // 预留/打款提现单ID（非空即已被占用）
	InvalidReason    string                   `gorm:"type:varchar(255)" json:"invalid_reason,omitempty"`             // 驳回/失效原因
	Note             string                   `gorm:"type:text" json:"note,omitempty"`                               // 审核备注
	AdjustmentsJSON  CommissionAdjustmentList `gorm:"type:json" json:"adjustments,omitempty"`                        // 调整审计记录
	CreatedAt        time.Time                `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt        time.Time                `gorm:"index" json:"updated_at"`                                       // 更新时间
	DeletedAt        gorm.DeletedAt           `gorm:"index" json:"-"`                                                // 软删除时间

	User           User        `gorm:"foreignKey:UserID" json:"user,omitempty"`                      // 分销用户
	Order          Order       `gorm:"foreignKey:OrderID" json:"order,omitempty"`                    // 关联订单
	PaidWithdrawal *Withdrawal `gorm:"foreignKey:PaidWithdrawalID" json:"paid_withdrawal,omitempty"` // 提现单
}

// TableName 指定表名
func (Commission) TableName() string {
	return "commissions"
}
