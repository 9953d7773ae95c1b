package models

import (
	"time"

	"gorm.io/gorm"
)

// Withdrawal 提现单（打款批次）
type Withdrawal struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                         // 主键
	ReferenceNo   string         `gorm:"uniqueIndex;not null" json:"reference_no"`                     // 提现单号
	UserID        uint           `gorm:"not null;index" json:"user_id"`                                // 分销用户ID
	Amount        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`          // 提现总额（恒等于明细快照之和）
	Currency      string         `gorm:"not null;default:'MAD'" json:"currency"`                       // 币种
	Status        string         `gorm:"type:varchar(32);not null;index" json:"status"`                // 提现状态
	Method        string         `gorm:"type:varchar(32);not null" json:"method"`                      // 打款方式
	BankAccountID *uint          `gorm:"index" json:"bank_account_id,omitempty"`                       // 收款银行账户ID
	PaymentRef    string         `gorm:"type:varchar(128)" json:"payment_ref,omitempty"`               // 银行打款参考号
	EvidencePath  string         `gorm:"type:varchar(500)" json:"evidence_path,omitempty"`             // 打款凭证文件路径
	RejectReason  string         `gorm:"type:varchar(255)" json:"reject_reason,omitempty"`             // 驳回原因
	NoteLog       string         `gorm:"type:text" json:"note_log,omitempty"`                          // 审核备注流水（只追加）
	ApprovedAt    *time.Time     `gorm:"index" json:"approved_at,omitempty"`                           // 审核通过时间
	PaidAt        *time.Time     `gorm:"index" json:"paid_at,omitempty"`                               // 打款完成时间
	ProcessedBy   *uint          `gorm:"index" json:"processed_by,omitempty"`                          // 处理管理员ID
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间

	User        User             `gorm:"foreignKey:UserID" json:"user,omitempty"`                // 分销用户
	BankAccount *BankAccount     `gorm:"foreignKey:BankAccountID" json:"bank_account,omitempty"` // 收款账户
	Items       []WithdrawalItem `gorm:"foreignKey:WithdrawalID" json:"items,omitempty"`         // 佣金明细
	Processor   *Admin           `gorm:"foreignKey:ProcessedBy" json:"processor,omitempty"`      // 处理管理员
}

// TableName 指定表名
func (Withdrawal) TableName() string {
	return "withdrawals"
}
