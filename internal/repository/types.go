package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionListFilter 查询佣金列表的过滤条件
type CommissionListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	OrderID     uint
	OrderNo     string
	Status      string
	Keyword     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// WithdrawalListFilter 查询提现单列表的过滤条件
type WithdrawalListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Status      string
	ReferenceNo string
	Keyword     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page            int
	PageSize        int
	UserID          uint
	AffiliateUserID uint
	Status          string
	OrderNo         string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page        int
	PageSize    int
	Keyword     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// UserBalanceAggregate 分销用户余额汇总
type UserBalanceAggregate struct {
	PendingAmount  decimal.Decimal // 冷静期内佣金总额
	EligibleAmount decimal.Decimal // 可提现佣金总额（未被活动提现单占用）
	ReservedAmount decimal.Decimal // 已被活动提现单占用的总额
	PaidAmount     decimal.Decimal // 已打款佣金总额
}
