package constants

// 订单状态常量
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusReturned       = "returned"
	OrderStatusCanceled       = "canceled"
)

// 佣金状态常量
const (
	CommissionStatusCalculated = "calculated"
	CommissionStatusEligible   = "eligible"
	CommissionStatusApproved   = "approved"
	CommissionStatusPaid       = "paid"
	CommissionStatusRejected   = "rejected"
	CommissionStatusAdjusted   = "adjusted"
)

// 提现状态常量
const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusApproved  = "approved"
	WithdrawalStatusInPayment = "in_payment"
	WithdrawalStatusPaid      = "paid"
	WithdrawalStatusRejected  = "rejected"
	WithdrawalStatusCanceled  = "canceled"
)

// WithdrawalInactiveStatuses 不占用佣金的提现单状态（驳回、取消后佣金即释放）
var WithdrawalInactiveStatuses = []string{WithdrawalStatusRejected, WithdrawalStatusCanceled}

// 提现打款方式常量
const (
	WithdrawalMethodBankTransfer = "bank_transfer"
)

// 订单退货佣金处理策略常量
const (
	ReturnPolicyZeroOnReturn  = "zero_on_return"
	ReturnPolicyKeepIfPartial = "keep_if_partial"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 队列与异步任务常量
const (
	QueueDefault             = "default"
	TaskCommissionCalculate  = "commission:calculate"
	TaskCommissionReverse    = "commission:reverse"
)

// 验证码场景常量
const (
	CaptchaSceneUserLogin    = "user_login"
	CaptchaSceneUserRegister = "user_register"
	CaptchaSceneAdminLogin   = "admin_login"
)

// 设置键常量
const (
	SettingKeyCommissionConfig = "commission_config"
	SettingKeyWithdrawalConfig = "withdrawal_config"
)
