package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户表（分销用户直接挂在用户上）
type User struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                   // 主键
	Email              string         `gorm:"uniqueIndex;not null" json:"email"`      // 邮箱
	PasswordHash       string         `gorm:"not null" json:"-"`                      // 密码哈希（不返回给前端）
	DisplayName        string         `gorm:"default:''" json:"display_name"`         // 昵称
	AffiliateCode      string         `gorm:"uniqueIndex" json:"affiliate_code"`      // 分销推广码
	Status             string         `gorm:"default:'active';index" json:"status"`   // 账号状态
	TokenVersion       uint64         `gorm:"not null;default:0" json:"-"`            // Token 版本（用于全量失效）
	TokenInvalidBefore *time.Time     `gorm:"index" json:"-"`                         // 该时间点前签发的 Token 失效
	LastLoginAt        *time.Time     `json:"last_login_at"`                          // 最后登录时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
