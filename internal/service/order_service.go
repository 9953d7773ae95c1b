package service

import (
	"strings"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/logger"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/queue"
	"github.com/affilia-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderService 订单事件服务。
// 佣金子系统不负责下单与收款，只消费订单生命周期事件：
// 交付触发计佣，退货/取消触发佣金逆向。
type OrderService struct {
	repo              repository.OrderRepository
	userRepo          repository.UserRepository
	queueClient       *queue.Client
	commissionService *CommissionService
	settingService    *SettingService
}

// NewOrderService 创建订单事件服务
func NewOrderService(
	repo repository.OrderRepository,
	userRepo repository.UserRepository,
	queueClient *queue.Client,
	commissionService *CommissionService,
	settingService *SettingService,
) *OrderService {
	return &OrderService{
		repo:              repo,
		userRepo:          userRepo,
		queueClient:       queueClient,
		commissionService: commissionService,
		settingService:    settingService,
	}
}

// OrderIngestInput 订单接入输入（来自商城子系统的订单快照）
type OrderIngestInput struct {
	OrderNo       string
	UserID        uint
	AffiliateCode string
	Currency      string
	TotalAmount   decimal.Decimal
	Items         []OrderIngestItem
}

// OrderIngestItem 订单项接入输入
type OrderIngestItem struct {
	ProductID      uint
	Title          string
	UnitPrice      decimal.Decimal
	Quantity       int
	TotalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
}

// Ingest 接入订单快照并完成推广码归因
func (s *OrderService) Ingest(input OrderIngestInput) (*models.Order, error) {
	orderNo := strings.TrimSpace(input.OrderNo)
	if orderNo == "" || s.repo == nil {
		return nil, ErrOrderStateInvalid
	}
	existing, err := s.repo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	order := &models.Order{
		OrderNo:     orderNo,
		UserID:      input.UserID,
		Status:      constants.OrderStatusPaid,
		Currency:    strings.TrimSpace(input.Currency),
		TotalAmount: models.NewMoneyFromDecimal(input.TotalAmount.Round(2)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.Currency == "" {
		order.Currency = "MAD"
	}

	// 归因：推广码有效且非自购时记录归因快照
	if code := strings.ToUpper(strings.TrimSpace(input.AffiliateCode)); code != "" && s.userRepo != nil {
		affiliate, err := s.userRepo.GetByAffiliateCode(code)
		if err != nil {
			return nil, err
		}
		if affiliate != nil &&
			strings.TrimSpace(affiliate.Status) != constants.UserStatusDisabled &&
			affiliate.ID != input.UserID {
			affiliateID := affiliate.ID
			order.AffiliateUserID = &affiliateID
			order.AffiliateCode = code
		}
	}

	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      item.ProductID,
			Title:          strings.TrimSpace(item.Title),
			UnitPrice:      models.NewMoneyFromDecimal(item.UnitPrice.Round(2)),
			Quantity:       item.Quantity,
			TotalPrice:     models.NewMoneyFromDecimal(item.TotalPrice.Round(2)),
			DiscountAmount: models.NewMoneyFromDecimal(item.DiscountAmount.Round(2)),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := s.repo.Create(order); err != nil {
		return nil, err
	}

	// 触发状态配置为已支付时，接入即计佣
	if order.AffiliateUserID != nil && s.settingService != nil {
		setting, err := s.settingService.GetCommissionSetting()
		if err != nil {
			return nil, err
		}
		if setting.Enabled && setting.TriggerStatus == constants.OrderStatusPaid {
			if err := s.dispatchCommissionCalculate(order.ID); err != nil {
				return nil, err
			}
		}
	}
	return s.repo.GetByID(order.ID)
}

// dispatchCommissionCalculate 投递计佣任务，队列不可用或投递失败时降级为同步计佣。
func (s *OrderService) dispatchCommissionCalculate(orderID uint) error {
	if s.queueClient != nil && s.queueClient.Enabled() {
		err := s.queueClient.EnqueueCommissionCalculate(queue.CommissionCalculatePayload{OrderID: orderID})
		if err == nil {
			return nil
		}
		logger.Warnw("commission_calculate_enqueue_failed_fallback_sync", "order_id", orderID, "error", err)
	}
	_, err := s.commissionService.CalculateForOrder(orderID)
	return err
}

// HandleDelivered 处理订单交付事件，异步触发计佣。
func (s *OrderService) HandleDelivered(orderID uint) (*models.Order, error) {
	if orderID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		order, err := repoTx.GetByIDForUpdate(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrNotFound
		}
		switch order.Status {
		case constants.OrderStatusPaid, constants.OrderStatusShipped:
		default:
			return ErrOrderStateInvalid
		}
		now := time.Now()
		order.Status = constants.OrderStatusDelivered
		order.DeliveredAt = &now
		order.UpdatedAt = now
		return repoTx.Update(order)
	})
	if err != nil {
		return nil, err
	}

	if err := s.dispatchCommissionCalculate(orderID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(orderID)
}

// HandleReturned 处理订单退货事件，记录退款金额并异步触发佣金逆向。
func (s *OrderService) HandleReturned(orderID uint, refundAmount decimal.Decimal, reason string) (*models.Order, error) {
	if orderID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	delta := refundAmount.Round(2)
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		order, err := repoTx.GetByIDForUpdate(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrNotFound
		}
		if order.Status != constants.OrderStatusDelivered && order.Status != constants.OrderStatusReturned {
			return ErrOrderStateInvalid
		}
		now := time.Now()
		if delta.GreaterThan(decimal.Zero) {
			refunded := order.RefundedAmount.Decimal.Add(delta).Round(2)
			total := order.TotalAmount.Decimal.Round(2)
			if refunded.GreaterThan(total) {
				refunded = total
			}
			order.RefundedAmount = models.NewMoneyFromDecimal(refunded)
		}
		order.Status = constants.OrderStatusReturned
		order.ReturnedAt = &now
		order.UpdatedAt = now
		return repoTx.Update(order)
	})
	if err != nil {
		return nil, err
	}

	payload := queue.CommissionReversePayload{
		OrderID:     orderID,
		RefundDelta: delta.StringFixed(2),
		Reason:      strings.TrimSpace(reason),
	}
	if err := s.queueClient.EnqueueCommissionReverse(payload); err != nil {
		logger.Warnw("order_returned_enqueue_failed_fallback_sync", "order_id", orderID, "error", err)
		if revErr := s.commissionService.HandleOrderReturned(orderID, delta, reason); revErr != nil {
			return nil, revErr
		}
	}
	if !s.queueClient.Enabled() {
		if revErr := s.commissionService.HandleOrderReturned(orderID, delta, reason); revErr != nil {
			return nil, revErr
		}
	}
	return s.repo.GetByID(orderID)
}

// HandleCanceled 处理订单取消事件并触发佣金逆向。
func (s *OrderService) HandleCanceled(orderID uint, reason string) (*models.Order, error) {
	if orderID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		order, err := repoTx.GetByIDForUpdate(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrNotFound
		}
		if order.Status == constants.OrderStatusCanceled {
			return nil
		}
		now := time.Now()
		order.Status = constants.OrderStatusCanceled
		order.CanceledAt = &now
		order.UpdatedAt = now
		return repoTx.Update(order)
	})
	if err != nil {
		return nil, err
	}

	payload := queue.CommissionReversePayload{
		OrderID:  orderID,
		Reason:   strings.TrimSpace(reason),
		Canceled: true,
	}
	if err := s.queueClient.EnqueueCommissionReverse(payload); err != nil {
		logger.Warnw("order_canceled_enqueue_failed_fallback_sync", "order_id", orderID, "error", err)
		if revErr := s.commissionService.HandleOrderCanceled(orderID, reason); revErr != nil {
			return nil, revErr
		}
	}
	if !s.queueClient.Enabled() {
		if revErr := s.commissionService.HandleOrderCanceled(orderID, reason); revErr != nil {
			return nil, revErr
		}
	}
	return s.repo.GetByID(orderID)
}

// GetByID 查询订单详情
func (s *OrderService) GetByID(id uint) (*models.Order, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	order, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// List 查询订单列表
func (s *OrderService) List(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if s.repo == nil {
		return []models.Order{}, 0, nil
	}
	return s.repo.List(filter)
}
