package service

import "errors"

// 业务错误定义，由 HTTP 层映射为统一错误响应。
var (
	ErrNotFound             = errors.New("记录不存在")
	ErrInvalidCredentials   = errors.New("账号或密码错误")
	ErrUserDisabled         = errors.New("账号已被禁用")
	ErrInvalidPassword      = errors.New("原密码错误")
	ErrWeakPassword         = errors.New("密码强度不满足要求")
	ErrInvalidEmail         = errors.New("邮箱格式不合法")
	ErrEmailExists          = errors.New("邮箱已被注册")
	ErrCaptchaInvalid       = errors.New("验证码错误或已过期")
	ErrCaptchaRequired      = errors.New("该操作需要验证码")
	ErrCaptchaConfigInvalid = errors.New("验证码配置不合法")

	// 佣金相关
	ErrCommissionStateInvalid  = errors.New("佣金状态不允许该操作")
	ErrCommissionCalcInvalid   = errors.New("佣金计算输入不合法")
	ErrCommissionDisabled      = errors.New("分销佣金功能未启用")
	ErrCommissionConfigInvalid = errors.New("佣金配置不合法")
	ErrAdjustReasonRequired    = errors.New("佣金调整必须填写原因")
	ErrRejectReasonRequired    = errors.New("驳回操作必须填写原因")

	// 提现相关
	ErrWithdrawalStateInvalid  = errors.New("提现单状态不允许该操作")
	ErrWithdrawalInsufficient  = errors.New("可提现余额不足")
	ErrWithdrawalAmountInvalid = errors.New("提现金额不合法")
	ErrWithdrawalMethodInvalid = errors.New("提现方式不可用")
	ErrWithdrawalConfigInvalid = errors.New("提现配置不合法")
	ErrReservationConflict     = errors.New("佣金已被其它提现单占用")
	ErrBankAccountInvalid      = errors.New("收款账户不可用")

	// 订单相关
	ErrOrderStateInvalid = errors.New("订单状态不允许该操作")
)
