package queue

import (
	"encoding/json"

	"github.com/affilia-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskCommissionCalculate 订单计佣任务
	TaskCommissionCalculate = constants.TaskCommissionCalculate
	// TaskCommissionReverse 佣金逆向任务（退货/取消）
	TaskCommissionReverse = constants.TaskCommissionReverse
)

// CommissionCalculatePayload 计佣任务载荷
type CommissionCalculatePayload struct {
	OrderID uint `json:"order_id"`
}

// CommissionReversePayload 佣金逆向任务载荷
type CommissionReversePayload struct {
	OrderID     uint   `json:"order_id"`
	RefundDelta string `json:"refund_delta"` // 本次退款金额（十进制字符串，取消时为空）
	Reason      string `json:"reason"`
	Canceled    bool   `json:"canceled"` // true 表示订单取消，false 表示退货
}

// NewCommissionCalculateTask 创建计佣任务
func NewCommissionCalculateTask(payload CommissionCalculatePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionCalculate, body), nil
}

// NewCommissionReverseTask 创建佣金逆向任务
func NewCommissionReverseTask(payload CommissionReversePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionReverse, body), nil
}
