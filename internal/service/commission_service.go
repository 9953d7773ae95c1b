package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/logger"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionService 佣金业务服务
type CommissionService struct {
	repo           repository.CommissionRepository
	orderRepo      repository.OrderRepository
	userRepo       repository.UserRepository
	settingService *SettingService
}

// NewCommissionService 创建佣金服务
func NewCommissionService(
	repo repository.CommissionRepository,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	settingService *SettingService,
) *CommissionService {
	return &CommissionService{
		repo:           repo,
		orderRepo:      orderRepo,
		userRepo:       userRepo,
		settingService: settingService,
	}
}

// CommissionAdjustInput 佣金调整输入
type CommissionAdjustInput struct {
	NewAmount decimal.Decimal
	Reason    string
}

// 单个订单项的计佣结果
const (
	CommissionCalcResultCreated = "created"
	CommissionCalcResultUpdated = "updated"
	CommissionCalcResultSkipped = "skipped"
	CommissionCalcResultFailed  = "failed"
)

// CommissionCalcOutcome 单个订单项的计佣结果
type CommissionCalcOutcome struct {
	OrderItemID uint   `json:"order_item_id"`
	Result      string `json:"result"`
	Amount      string `json:"amount,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// CommissionCalcReport 订单计佣批次报告。
// 单项计算失败只记录该项结果，不影响批次内其它订单项。
type CommissionCalcReport struct {
	OrderID      uint                    `json:"order_id"`
	Outcomes     []CommissionCalcOutcome `json:"outcomes"`
	CreatedCount int                     `json:"created_count"`
	UpdatedCount int                     `json:"updated_count"`
	SkippedCount int                     `json:"skipped_count"`
	FailedCount  int                     `json:"failed_count"`
	Created      []models.Commission     `json:"-"`
}

func (r *CommissionCalcReport) add(itemID uint, result, amount, reason string) {
	r.Outcomes = append(r.Outcomes, CommissionCalcOutcome{
		OrderItemID: itemID,
		Result:      result,
		Amount:      amount,
		Reason:      reason,
	})
	switch result {
	case CommissionCalcResultCreated:
		r.CreatedCount++
	case CommissionCalcResultUpdated:
		r.UpdatedCount++
	case CommissionCalcResultSkipped:
		r.SkippedCount++
	case CommissionCalcResultFailed:
		r.FailedCount++
	}
}

// CalculateForOrder 按订单逐项生成佣金记录。
// 按订单项幂等：已有记录仍处于已计算状态时按当前配置重算并更新金额，
// 已进入审核流程的记录跳过。
func (s *CommissionService) CalculateForOrder(orderID uint) (*CommissionCalcReport, error) {
	report := &CommissionCalcReport{OrderID: orderID}
	if orderID == 0 || s.repo == nil || s.orderRepo == nil {
		return report, nil
	}
	setting, err := s.settingService.GetCommissionSetting()
	if err != nil {
		return nil, err
	}
	if !setting.Enabled {
		return report, nil
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return report, nil
	}
	if order.AffiliateUserID == nil || *order.AffiliateUserID == 0 {
		return report, nil
	}
	// 自购订单不产生佣金
	if order.UserID > 0 && *order.AffiliateUserID == order.UserID {
		return report, nil
	}
	if order.Status != setting.TriggerStatus {
		return nil, ErrOrderStateInvalid
	}

	affiliate, err := s.userRepo.GetByID(*order.AffiliateUserID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || strings.TrimSpace(affiliate.Status) == constants.UserStatusDisabled {
		return report, nil
	}

	eligibleDueAt := s.resolveEligibleDueAt(order, setting)

	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		now := time.Now()
		for i := range order.Items {
			item := order.Items[i]
			existing, err := repoTx.GetByOrderItemID(item.ID)
			if err != nil {
				return err
			}
			if existing != nil && existing.Status != constants.CommissionStatusCalculated {
				report.add(item.ID, CommissionCalcResultSkipped,
					existing.Amount.Decimal.StringFixed(2), "佣金已进入审核流程")
				continue
			}

			amount, base, rate, fixed, calcErr := calculateItemCommission(item, setting)
			if calcErr != nil {
				// 单项计算失败只影响该项，记录后继续
				logger.Warnw("commission_calc_item_failed",
					"order_id", order.ID,
					"order_item_id", item.ID,
					"error", calcErr,
				)
				report.add(item.ID, CommissionCalcResultFailed, "", calcErr.Error())
				continue
			}

			if existing != nil {
				if existing.Amount.Decimal.Equal(amount) {
					report.add(item.ID, CommissionCalcResultSkipped, amount.StringFixed(2), "金额未变化")
					continue
				}
				existing.BaseAmount = models.NewMoneyFromDecimal(base)
				existing.RatePercent = models.NewMoneyFromDecimal(rate)
				existing.FixedAmount = models.NewMoneyFromDecimal(fixed)
				existing.Amount = models.NewMoneyFromDecimal(amount)
				existing.UpdatedAt = now
				if err := repoTx.Update(existing); err != nil {
					return err
				}
				report.add(item.ID, CommissionCalcResultUpdated, amount.StringFixed(2), "")
				continue
			}

			if amount.LessThanOrEqual(decimal.Zero) {
				report.add(item.ID, CommissionCalcResultSkipped, "0.00", "不产生佣金")
				continue
			}

			itemID := item.ID
			commission := models.Commission{
				UserID:      *order.AffiliateUserID,
				OrderID:     order.ID,
				OrderItemID: &itemID,
				Currency:    order.Currency,
				BaseAmount:  models.NewMoneyFromDecimal(base),
				RatePercent: models.NewMoneyFromDecimal(rate),
				FixedAmount: models.NewMoneyFromDecimal(fixed),
				Amount:      models.NewMoneyFromDecimal(amount),
				Status:      constants.CommissionStatusCalculated,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if eligibleDueAt == nil {
				// 冷静期为 0 天时交付即转可提现
				commission.Status = constants.CommissionStatusEligible
				commission.EligibleAt = &now
			} else {
				commission.EligibleDueAt = eligibleDueAt
			}
			if err := repoTx.Create(&commission); err != nil {
				return err
			}
			report.add(item.ID, CommissionCalcResultCreated, amount.StringFixed(2), "")
			report.Created = append(report.Created, commission)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// resolveEligibleDueAt 计算冷静期到期时间，冷静期为 0 返回 nil。
func (s *CommissionService) resolveEligibleDueAt(order *models.Order, setting CommissionSetting) *time.Time {
	if setting.CooldownDays <= 0 {
		return nil
	}
	anchor := time.Now()
	if order.DeliveredAt != nil {
		anchor = *order.DeliveredAt
	}
	due := anchor.Add(time.Duration(setting.CooldownDays) * 24 * time.Hour)
	return &due
}

// calculateItemCommission 计算单个订单项的佣金金额。
// 固定单件佣金优先于比例；比例为 0 时回退全局默认比例。
func calculateItemCommission(item models.OrderItem, setting CommissionSetting) (amount, base, rate, fixed decimal.Decimal, err error) {
	base = item.TotalPrice.Decimal.Sub(item.DiscountAmount.Decimal).Round(2)
	if base.LessThan(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("%w: 订单项 %d 佣金基数为负", ErrCommissionCalcInvalid, item.ID)
	}
	if !item.Product.IsCommissionable {
		return decimal.Zero, base, decimal.Zero, decimal.Zero, nil
	}

	fixed = item.Product.CommissionFixedAmount.Decimal.Round(2)
	if fixed.GreaterThan(decimal.Zero) {
		amount = fixed.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		return amount, base, decimal.Zero, fixed, nil
	}

	rate = item.Product.CommissionRatePercent.Decimal.Round(2)
	if rate.LessThanOrEqual(decimal.Zero) {
		rate = decimal.NewFromFloat(setting.DefaultRatePercent).Round(2)
	}
	if rate.LessThan(decimal.Zero) || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("%w: 订单项 %d 佣金比例超出 0-100", ErrCommissionCalcInvalid, item.ID)
	}
	amount = base.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
	return amount, base, rate, decimal.Zero, nil
}

// MarkEligibleDue 将冷静期到期的佣金批量转可提现，并按阈值自动审核通过。
func (s *CommissionService) MarkEligibleDue(now time.Time) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	affected, err := s.repo.MarkCalculatedEligibleDue(now, now)
	if err != nil {
		return 0, err
	}

	setting, err := s.settingService.GetCommissionSetting()
	if err != nil {
		return affected, err
	}
	if setting.AutoApproveThreshold > 0 {
		if err := s.autoApproveSmallCommissions(setting.AutoApproveThreshold, now); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

// autoApproveSmallCommissions 自动审核金额不超过阈值的可提现佣金。
func (s *CommissionService) autoApproveSmallCommissions(threshold float64, now time.Time) error {
	limit := decimal.NewFromFloat(threshold).Round(2)
	return s.repo.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Commission{}).
			Where("status = ? AND amount <= ? AND paid_withdrawal_id IS NULL",
				constants.CommissionStatusEligible, limit).
			Updates(map[string]interface{}{
				"status":      constants.CommissionStatusApproved,
				"approved_at": now,
				"updated_at":  now,
			}).Error
	})
}

// Approve 审核通过佣金。冷静期内的已计算佣金允许提前人工通过。
func (s *CommissionService) Approve(adminID, commissionID uint, note string) (*models.Commission, error) {
	if commissionID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		commission, err := repoTx.GetByIDForUpdate(commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return ErrNotFound
		}
		now := time.Now()
		switch commission.Status {
		case constants.CommissionStatusEligible:
		case constants.CommissionStatusCalculated:
			commission.EligibleAt = &now
			commission.EligibleDueAt = nil
		default:
			return ErrCommissionStateInvalid
		}
		commission.Status = constants.CommissionStatusApproved
		commission.ApprovedAt = &now
		commission.Note = strings.TrimSpace(note)
		commission.UpdatedAt = now
		return repoTx.Update(commission)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(commissionID)
}

// Reject 驳回佣金，原因必填。已被活动提现单占用的佣金不可驳回。
func (s *CommissionService) Reject(adminID, commissionID uint, reason string) (*models.Commission, error) {
	if commissionID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	reasonText := strings.TrimSpace(reason)
	if reasonText == "" {
		return nil, ErrRejectReasonRequired
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		commission, err := repoTx.GetByIDForUpdate(commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return ErrNotFound
		}
		switch commission.Status {
		case constants.CommissionStatusCalculated, constants.CommissionStatusEligible,
			constants.CommissionStatusApproved, constants.CommissionStatusAdjusted:
		default:
			return ErrCommissionStateInvalid
		}
		reserved, err := commissionReservedInActiveWithdrawal(tx, commissionID)
		if err != nil {
			return err
		}
		if reserved {
			return ErrReservationConflict
		}

		now := time.Now()
		commission.Status = constants.CommissionStatusRejected
		commission.InvalidReason = reasonText
		commission.EligibleDueAt = nil
		commission.UpdatedAt = now
		return repoTx.Update(commission)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(commissionID)
}

// Adjust 调整佣金金额并追加审计记录。
// 审核通过前的调整直接修改金额；打款后的调整仅作账务更正，已打款总额不回写。
// 历史提现单明细的金额快照一律保持不变。
func (s *CommissionService) Adjust(adminID, commissionID uint, input CommissionAdjustInput) (*models.Commission, error) {
	if commissionID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	reasonText := strings.TrimSpace(input.Reason)
	if reasonText == "" {
		return nil, ErrAdjustReasonRequired
	}
	newAmount := input.NewAmount.Round(2)
	if newAmount.LessThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: 调整后金额不能为负", ErrCommissionCalcInvalid)
	}

	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		commission, err := repoTx.GetByIDForUpdate(commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return ErrNotFound
		}
		postPayment := false
		switch commission.Status {
		case constants.CommissionStatusApproved, constants.CommissionStatusAdjusted:
		case constants.CommissionStatusPaid:
			postPayment = true
		default:
			return ErrCommissionStateInvalid
		}

		now := time.Now()
		original := commission.Amount.Decimal.Round(2)
		entry := models.CommissionAdjustment{
			OriginalAmount: original.StringFixed(2),
			NewAmount:      newAmount.StringFixed(2),
			Difference:     newAmount.Sub(original).Round(2).StringFixed(2),
			Reason:         reasonText,
			ActorAdminID:   adminID,
			PostPayment:    postPayment,
			AdjustedAt:     now,
		}
		commission.AdjustmentsJSON = append(commission.AdjustmentsJSON, entry)
		commission.Amount = models.NewMoneyFromDecimal(newAmount)
		commission.Status = constants.CommissionStatusAdjusted
		commission.UpdatedAt = now
		return repoTx.Update(commission)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(commissionID)
}

// MarkPaidForWithdrawalTx 在提现事务内将提现单挂载的佣金批量置为已打款。
// 该方法是佣金进入 paid 状态的唯一入口，所有佣金共享同一打款时间。
func (s *CommissionService) MarkPaidForWithdrawalTx(tx *gorm.DB, withdrawalID uint, paidAt time.Time) error {
	if tx == nil || withdrawalID == 0 || s.repo == nil {
		return nil
	}
	repoTx := s.repo.WithTx(tx)

	var items []models.WithdrawalItem
	if err := tx.Where("withdrawal_id = ?", withdrawalID).Find(&items).Error; err != nil {
		return err
	}
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		if item.CommissionID == 0 {
			continue
		}
		ids = append(ids, item.CommissionID)
	}
	return repoTx.BatchUpdate(ids, map[string]interface{}{
		"status":             constants.CommissionStatusPaid,
		"paid_at":            paidAt,
		"paid_withdrawal_id": withdrawalID,
		"updated_at":         paidAt,
	})
}

// HandleOrderReturned 处理订单退货后的佣金逆向。
// zero_on_return 策略下佣金整单清零并驳回；
// keep_if_partial 策略下按退款比例扣减佣金，全额退款时清零。
// 已被活动提现单占用的佣金跳过并记录告警。
func (s *CommissionService) HandleOrderReturned(orderID uint, refundDelta decimal.Decimal, reason string) error {
	if orderID == 0 || s.repo == nil {
		return nil
	}
	setting, err := s.settingService.GetCommissionSetting()
	if err != nil {
		return err
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}

	reasonText := strings.TrimSpace(reason)
	if reasonText == "" {
		reasonText = "order_returned"
	}

	return s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		rows, err := repoTx.ListByOrderForUpdate(orderID, []string{
			constants.CommissionStatusCalculated,
			constants.CommissionStatusEligible,
			constants.CommissionStatusApproved,
			constants.CommissionStatusAdjusted,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		now := time.Now()
		for i := range rows {
			item := rows[i]
			reserved, err := commissionReservedInActiveWithdrawal(tx, item.ID)
			if err != nil {
				return err
			}
			if reserved {
				logger.Warnw("commission_reversal_skipped_reserved",
					"commission_id", item.ID,
					"order_id", orderID,
					"reason", reasonText,
				)
				continue
			}

			if setting.ReturnPolicy == constants.ReturnPolicyKeepIfPartial {
				if err := reduceCommissionProportionally(repoTx, &item, order, refundDelta, reasonText, now); err != nil {
					return err
				}
				continue
			}

			original := item.Amount.Decimal.Round(2)
			if original.GreaterThan(decimal.Zero) {
				item.AdjustmentsJSON = append(item.AdjustmentsJSON, models.CommissionAdjustment{
					OriginalAmount: original.StringFixed(2),
					NewAmount:      "0.00",
					Difference:     decimal.Zero.Sub(original).StringFixed(2),
					Reason:         reasonText,
					AdjustedAt:     now,
				})
			}
			item.Amount = models.NewMoneyFromDecimal(decimal.Zero)
			item.Status = constants.CommissionStatusRejected
			item.InvalidReason = reasonText
			item.EligibleDueAt = nil
			item.UpdatedAt = now
			if err := repoTx.Update(&item); err != nil {
				return err
			}
		}
		return nil
	})
}

// HandleOrderCanceled 处理订单取消后的佣金逆向（未打款佣金整单驳回）。
func (s *CommissionService) HandleOrderCanceled(orderID uint, reason string) error {
	if orderID == 0 || s.repo == nil {
		return nil
	}
	reasonText := strings.TrimSpace(reason)
	if reasonText == "" {
		reasonText = "order_canceled"
	}
	return s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		rows, err := repoTx.ListByOrderForUpdate(orderID, []string{
			constants.CommissionStatusCalculated,
			constants.CommissionStatusEligible,
			constants.CommissionStatusApproved,
			constants.CommissionStatusAdjusted,
		})
		if err != nil {
			return err
		}
		now := time.Now()
		for i := range rows {
			item := rows[i]
			reserved, err := commissionReservedInActiveWithdrawal(tx, item.ID)
			if err != nil {
				return err
			}
			if reserved {
				logger.Warnw("commission_reversal_skipped_reserved",
					"commission_id", item.ID,
					"order_id", orderID,
					"reason", reasonText,
				)
				continue
			}
			item.Status = constants.CommissionStatusRejected
			item.InvalidReason = reasonText
			item.EligibleDueAt = nil
			item.UpdatedAt = now
			if err := repoTx.Update(&item); err != nil {
				return err
			}
		}
		return nil
	})
}

// reduceCommissionProportionally 按“本次退款金额 / 订单剩余未退款金额”比例扣减佣金，
// 避免多次部分退款时重复放大扣减。
func reduceCommissionProportionally(
	repoTx repository.CommissionRepository,
	commission *models.Commission,
	order *models.Order,
	refundDelta decimal.Decimal,
	reason string,
	now time.Time,
) error {
	delta := refundDelta.Round(2)
	totalAmount := order.TotalAmount.Decimal.Round(2)
	if delta.LessThanOrEqual(decimal.Zero) || totalAmount.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	refundedBefore := order.RefundedAmount.Decimal.Sub(delta).Round(2)
	if refundedBefore.LessThan(decimal.Zero) {
		refundedBefore = decimal.Zero
	}
	remaining := totalAmount.Sub(refundedBefore).Round(2)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	if delta.GreaterThan(remaining) {
		delta = remaining
	}

	current := commission.Amount.Decimal.Round(2)
	deduct := current.Mul(delta).Div(remaining).Round(2)
	next := current.Sub(deduct).Round(2)
	if next.LessThan(decimal.Zero) {
		next = decimal.Zero
	}

	if !next.Equal(current) {
		commission.AdjustmentsJSON = append(commission.AdjustmentsJSON, models.CommissionAdjustment{
			OriginalAmount: current.StringFixed(2),
			NewAmount:      next.StringFixed(2),
			Difference:     next.Sub(current).StringFixed(2),
			Reason:         reason,
			AdjustedAt:     now,
		})
	}
	commission.Amount = models.NewMoneyFromDecimal(next)
	commission.UpdatedAt = now
	if next.LessThanOrEqual(decimal.Zero) {
		commission.Status = constants.CommissionStatusRejected
		commission.InvalidReason = reason
		commission.EligibleDueAt = nil
	}
	return repoTx.Update(commission)
}

// commissionReservedInActiveWithdrawal 查询佣金是否已挂入任一活动提现单。
func commissionReservedInActiveWithdrawal(tx *gorm.DB, commissionID uint) (bool, error) {
	if tx == nil || commissionID == 0 {
		return false, nil
	}
	var total int64
	err := tx.Model(&models.WithdrawalItem{}).
		Joins("JOIN withdrawals w ON w.id = withdrawal_items.withdrawal_id").
		Where("withdrawal_items.commission_id = ? AND w.status NOT IN ? AND w.deleted_at IS NULL",
			commissionID, constants.WithdrawalInactiveStatuses).
		Count(&total).Error
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

// List 后台查询佣金列表
func (s *CommissionService) List(filter repository.CommissionListFilter) ([]models.Commission, int64, error) {
	if s.repo == nil {
		return []models.Commission{}, 0, nil
	}
	return s.repo.List(filter)
}

// GetByID 查询佣金详情
func (s *CommissionService) GetByID(id uint) (*models.Commission, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	commission, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return nil, ErrNotFound
	}
	return commission, nil
}

// GetUserBalance 查询分销用户余额汇总
func (s *CommissionService) GetUserBalance(userID uint) (repository.UserBalanceAggregate, error) {
	if s.repo == nil {
		return repository.UserBalanceAggregate{}, nil
	}
	return s.repo.GetUserBalance(userID)
}

// ListUserCommissions 查询用户佣金记录
func (s *CommissionService) ListUserCommissions(userID uint, page, pageSize int, status string) ([]models.Commission, int64, error) {
	if userID == 0 || s.repo == nil {
		return []models.Commission{}, 0, nil
	}
	return s.repo.List(repository.CommissionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Status:   strings.TrimSpace(status),
	})
}
