package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/affilia-next/internal/logger"
	"github.com/affilia-next/internal/provider"
	"github.com/affilia-next/internal/queue"
	"github.com/affilia-next/internal/service"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskCommissionCalculate, c.handleCommissionCalculate)
	mux.HandleFunc(queue.TaskCommissionReverse, c.handleCommissionReverse)
}

func (c *Consumer) handleCommissionCalculate(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_commission_calculate_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommissionCalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commission_calculate_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_commission_calculate_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.CommissionService == nil {
		logger.Warnw("worker_commission_calculate_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	report, err := c.CommissionService.CalculateForOrder(payload.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCommissionDisabled):
			logger.Debugw("worker_commission_calculate_skip_disabled", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrOrderStateInvalid):
			logger.Debugw("worker_commission_calculate_skip_invalid_status", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrNotFound):
			logger.Debugw("worker_commission_calculate_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_commission_calculate_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	if report != nil && report.FailedCount > 0 {
		logger.Warnw("worker_commission_calculate_partial_failure",
			"order_id", payload.OrderID,
			"created_count", report.CreatedCount,
			"failed_count", report.FailedCount,
		)
	}
	return nil
}

func (c *Consumer) handleCommissionReverse(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_commission_reverse_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommissionReversePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commission_reverse_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_commission_reverse_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.CommissionService == nil {
		logger.Warnw("worker_commission_reverse_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}

	var err error
	if payload.Canceled {
		err = c.CommissionService.HandleOrderCanceled(payload.OrderID, payload.Reason)
	} else {
		delta := decimal.Zero
		if payload.RefundDelta != "" {
			parsed, parseErr := decimal.NewFromString(payload.RefundDelta)
			if parseErr != nil {
				logger.Warnw("worker_commission_reverse_invalid_delta", "order_id", payload.OrderID, "refund_delta", payload.RefundDelta, "error", parseErr)
				return parseErr
			}
			delta = parsed
		}
		err = c.CommissionService.HandleOrderReturned(payload.OrderID, delta, payload.Reason)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			logger.Debugw("worker_commission_reverse_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_commission_reverse_failed", "order_id", payload.OrderID, "canceled", payload.Canceled, "error", err)
			return err
		}
	}
	return nil
}
