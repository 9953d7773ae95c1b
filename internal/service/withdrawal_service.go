package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalService 提现业务服务
type WithdrawalService struct {
	repo              repository.WithdrawalRepository
	commissionRepo    repository.CommissionRepository
	bankAccountRepo   repository.BankAccountRepository
	userRepo          repository.UserRepository
	commissionService *CommissionService
	settingService    *SettingService
}

// NewWithdrawalService 创建提现服务
func NewWithdrawalService(
	repo repository.WithdrawalRepository,
	commissionRepo repository.CommissionRepository,
	bankAccountRepo repository.BankAccountRepository,
	userRepo repository.UserRepository,
	commissionService *CommissionService,
	settingService *SettingService,
) *WithdrawalService {
	return &WithdrawalService{
		repo:              repo,
		commissionRepo:    commissionRepo,
		bankAccountRepo:   bankAccountRepo,
		userRepo:          userRepo,
		commissionService: commissionService,
		settingService:    settingService,
	}
}

// WithdrawalCreateInput 提现申请输入。
// Amount 与 CommissionIDs 二选一：按金额申请时系统按佣金生成顺序贪心挑选；
// 指定佣金ID时逐条校验后全部挂入。
type WithdrawalCreateInput struct {
	Amount        decimal.Decimal
	CommissionIDs []uint
	Method        string
	BankAccountID uint
	Note          string
}

// WithdrawalPaidInput 打款完成输入
type WithdrawalPaidInput struct {
	PaymentRef   string
	EvidencePath string
	Note         string
}

// ListEligibleCommissions 查询用户当前可挂入提现单的佣金
func (s *WithdrawalService) ListEligibleCommissions(userID uint) ([]models.Commission, error) {
	if userID == 0 || s.commissionRepo == nil {
		return []models.Commission{}, nil
	}
	return s.commissionRepo.ListEligibleUnreserved(userID)
}

// Create 创建提现单。
// 佣金挑选与明细快照写入在同一事务内完成，行锁保证并发申请不会重复占用同一笔佣金。
func (s *WithdrawalService) Create(userID uint, input WithdrawalCreateInput) (*models.Withdrawal, error) {
	if userID == 0 || s.repo == nil || s.commissionRepo == nil {
		return nil, ErrNotFound
	}
	setting, err := s.settingService.GetWithdrawalSetting()
	if err != nil {
		return nil, err
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = constants.WithdrawalMethodBankTransfer
	}
	if !containsWithdrawalMethod(setting.Methods, method) {
		return nil, ErrWithdrawalMethodInvalid
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(user.Status) == constants.UserStatusDisabled {
		return nil, ErrUserDisabled
	}

	bankAccount, err := s.resolveBankAccount(userID, input.BankAccountID)
	if err != nil {
		return nil, err
	}

	var createdID uint
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)

		selected, total, err := s.selectCommissions(tx, userID, input)
		if err != nil {
			return err
		}
		if err := validateWithdrawalAmount(total, setting); err != nil {
			return err
		}

		now := time.Now()
		withdrawal := &models.Withdrawal{
			ReferenceNo: generateWithdrawalReferenceNo(),
			UserID:      userID,
			Amount:      models.NewMoneyFromDecimal(total),
			Currency:    selected[0].Currency,
			Status:      constants.WithdrawalStatusPending,
			Method:      method,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if bankAccount != nil {
			id := bankAccount.ID
			withdrawal.BankAccountID = &id
		}
		if note := strings.TrimSpace(input.Note); note != "" {
			withdrawal.NoteLog = buildNoteLogEntry(now, "user", note)
		}
		if err := repoTx.Create(withdrawal); err != nil {
			return err
		}

		for _, commission := range selected {
			item := &models.WithdrawalItem{
				WithdrawalID: withdrawal.ID,
				CommissionID: commission.ID,
				Amount:       commission.Amount,
				CreatedAt:    now,
			}
			if err := repoTx.CreateItem(item); err != nil {
				return err
			}
		}
		createdID = withdrawal.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(createdID)
}

// selectCommissions 在事务内锁定并挑选要挂入提现单的佣金。
func (s *WithdrawalService) selectCommissions(
	tx *gorm.DB,
	userID uint,
	input WithdrawalCreateInput,
) ([]models.Commission, decimal.Decimal, error) {
	commissionTx := s.commissionRepo.WithTx(tx)
	if len(input.CommissionIDs) > 0 {
		rows, err := commissionTx.ListByIDsForUpdate(input.CommissionIDs)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if len(rows) != len(dedupeIDs(input.CommissionIDs)) {
			return nil, decimal.Zero, ErrNotFound
		}
		total := decimal.Zero
		for i := range rows {
			if err := validateCommissionAttachable(&rows[i], userID); err != nil {
				return nil, decimal.Zero, err
			}
			reserved, err := commissionReservedInActiveWithdrawal(tx, rows[i].ID)
			if err != nil {
				return nil, decimal.Zero, err
			}
			if reserved {
				return nil, decimal.Zero, ErrReservationConflict
			}
			total = total.Add(rows[i].Amount.Decimal).Round(2)
		}
		if total.LessThanOrEqual(decimal.Zero) {
			return nil, decimal.Zero, ErrWithdrawalAmountInvalid
		}
		return rows, total, nil
	}

	requested := input.Amount.Round(2)
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, ErrWithdrawalAmountInvalid
	}
	rows, err := commissionTx.ListEligibleUnreservedForUpdate(userID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	// 按生成顺序贪心挑选，凑足申请金额即止。佣金记录不做拆分，
	// 因此实际提现总额可能略高于申请金额。
	selected := make([]models.Commission, 0, len(rows))
	total := decimal.Zero
	for _, commission := range rows {
		if total.GreaterThanOrEqual(requested) {
			break
		}
		rowAmount := commission.Amount.Decimal.Round(2)
		if rowAmount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		selected = append(selected, commission)
		total = total.Add(rowAmount).Round(2)
	}
	if total.LessThan(requested) {
		return nil, decimal.Zero, ErrWithdrawalInsufficient
	}
	return selected, total, nil
}

// AttachCommission 向待审核提现单追加佣金
func (s *WithdrawalService) AttachCommission(userID, withdrawalID, commissionID uint) (*models.Withdrawal, error) {
	if withdrawalID == 0 || commissionID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		commissionTx := s.commissionRepo.WithTx(tx)

		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil || (userID != 0 && withdrawal.UserID != userID) {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusPending {
			return ErrWithdrawalStateInvalid
		}

		commission, err := commissionTx.GetByIDForUpdate(commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return ErrNotFound
		}
		if err := validateCommissionAttachable(commission, withdrawal.UserID); err != nil {
			return err
		}
		reserved, err := commissionReservedInActiveWithdrawal(tx, commissionID)
		if err != nil {
			return err
		}
		if reserved {
			return ErrReservationConflict
		}

		now := time.Now()
		item := &models.WithdrawalItem{
			WithdrawalID: withdrawalID,
			CommissionID: commissionID,
			Amount:       commission.Amount,
			CreatedAt:    now,
		}
		if err := repoTx.CreateItem(item); err != nil {
			return err
		}
		return s.recalcWithdrawalAmount(repoTx, withdrawal, now)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// DetachCommission 从待审核提现单移除佣金
func (s *WithdrawalService) DetachCommission(userID, withdrawalID, commissionID uint) (*models.Withdrawal, error) {
	if withdrawalID == 0 || commissionID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil || (userID != 0 && withdrawal.UserID != userID) {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusPending {
			return ErrWithdrawalStateInvalid
		}

		affected, err := repoTx.DeleteItem(withdrawalID, commissionID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return s.recalcWithdrawalAmount(repoTx, withdrawal, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// Approve 审核通过提现单。
// 在同一事务内逐笔复核佣金状态与占用情况，全部通过后回写 paid_withdrawal_id 完成预留。
func (s *WithdrawalService) Approve(adminID, withdrawalID uint, note string) (*models.Withdrawal, error) {
	if withdrawalID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		commissionTx := s.commissionRepo.WithTx(tx)

		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusPending {
			return ErrWithdrawalStateInvalid
		}

		items, err := repoTx.ListItems(withdrawalID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrWithdrawalAmountInvalid
		}

		ids := make([]uint, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.CommissionID)
		}
		commissions, err := commissionTx.ListByIDsForUpdate(ids)
		if err != nil {
			return err
		}
		if len(commissions) != len(ids) {
			return ErrReservationConflict
		}
		for i := range commissions {
			if err := validateCommissionAttachable(&commissions[i], withdrawal.UserID); err != nil {
				return err
			}
			reserved, err := s.repo.WithTx(tx).HasActiveReservation(commissions[i].ID, withdrawalID)
			if err != nil {
				return err
			}
			if reserved {
				return ErrReservationConflict
			}
		}

		now := time.Now()
		if err := commissionTx.BatchUpdate(ids, map[string]interface{}{
			"paid_withdrawal_id": withdrawalID,
			"updated_at":         now,
		}); err != nil {
			return err
		}

		withdrawal.Status = constants.WithdrawalStatusApproved
		withdrawal.ApprovedAt = &now
		withdrawal.ProcessedBy = &adminID
		withdrawal.UpdatedAt = now
		appendWithdrawalNote(withdrawal, now, "admin", note)
		return repoTx.Update(withdrawal)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// Reject 驳回提现单，原因必填。佣金释放回可提现池，明细保留作历史。
func (s *WithdrawalService) Reject(adminID, withdrawalID uint, reason string) (*models.Withdrawal, error) {
	if withdrawalID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	reasonText := strings.TrimSpace(reason)
	if reasonText == "" {
		return nil, ErrRejectReasonRequired
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		commissionTx := s.commissionRepo.WithTx(tx)

		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusPending && withdrawal.Status != constants.WithdrawalStatusApproved {
			return ErrWithdrawalStateInvalid
		}

		// 审核通过后驳回需要清掉已回写的预留标记
		if withdrawal.Status == constants.WithdrawalStatusApproved {
			reserved, err := commissionTx.ListByWithdrawalIDForUpdate(withdrawalID)
			if err != nil {
				return err
			}
			ids := make([]uint, 0, len(reserved))
			for _, commission := range reserved {
				ids = append(ids, commission.ID)
			}
			if err := commissionTx.BatchUpdate(ids, map[string]interface{}{
				"paid_withdrawal_id": nil,
				"updated_at":         time.Now(),
			}); err != nil {
				return err
			}
		}

		now := time.Now()
		withdrawal.Status = constants.WithdrawalStatusRejected
		withdrawal.RejectReason = reasonText
		withdrawal.ProcessedBy = &adminID
		withdrawal.UpdatedAt = now
		appendWithdrawalNote(withdrawal, now, "admin", reasonText)
		return repoTx.Update(withdrawal)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// MarkInPayment 标记提现单进入打款中
func (s *WithdrawalService) MarkInPayment(adminID, withdrawalID uint, paymentRef string) (*models.Withdrawal, error) {
	if withdrawalID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusApproved {
			return ErrWithdrawalStateInvalid
		}
		now := time.Now()
		withdrawal.Status = constants.WithdrawalStatusInPayment
		withdrawal.PaymentRef = strings.TrimSpace(paymentRef)
		withdrawal.ProcessedBy = &adminID
		withdrawal.UpdatedAt = now
		return repoTx.Update(withdrawal)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// MarkAsPaid 标记提现单打款完成。
// 提现单置为 paid 与所有挂载佣金置为 paid 在同一事务内完成，共享同一打款时间。
func (s *WithdrawalService) MarkAsPaid(adminID, withdrawalID uint, input WithdrawalPaidInput) (*models.Withdrawal, error) {
	if withdrawalID == 0 || s.repo == nil || s.commissionService == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusApproved && withdrawal.Status != constants.WithdrawalStatusInPayment {
			return ErrWithdrawalStateInvalid
		}

		now := time.Now()
		withdrawal.Status = constants.WithdrawalStatusPaid
		withdrawal.PaidAt = &now
		withdrawal.ProcessedBy = &adminID
		if ref := strings.TrimSpace(input.PaymentRef); ref != "" {
			withdrawal.PaymentRef = ref
		}
		if path := strings.TrimSpace(input.EvidencePath); path != "" {
			withdrawal.EvidencePath = path
		}
		withdrawal.UpdatedAt = now
		appendWithdrawalNote(withdrawal, now, "admin", input.Note)
		if err := repoTx.Update(withdrawal); err != nil {
			return err
		}
		return s.commissionService.MarkPaidForWithdrawalTx(tx, withdrawalID, now)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// SetEvidence 记录打款凭证路径（审核通过后任意打款阶段可补传）
func (s *WithdrawalService) SetEvidence(adminID, withdrawalID uint, evidencePath string) (*models.Withdrawal, error) {
	path := strings.TrimSpace(evidencePath)
	if withdrawalID == 0 || path == "" || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil {
			return ErrNotFound
		}
		switch withdrawal.Status {
		case constants.WithdrawalStatusApproved, constants.WithdrawalStatusInPayment, constants.WithdrawalStatusPaid:
		default:
			return ErrWithdrawalStateInvalid
		}
		now := time.Now()
		withdrawal.EvidencePath = path
		withdrawal.ProcessedBy = &adminID
		withdrawal.UpdatedAt = now
		appendWithdrawalNote(withdrawal, now, "admin", "evidence uploaded")
		return repoTx.Update(withdrawal)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// Cancel 用户取消提现单（仅待审核状态）
func (s *WithdrawalService) Cancel(userID, withdrawalID uint) (*models.Withdrawal, error) {
	if withdrawalID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		withdrawal, err := repoTx.GetByIDForUpdate(withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil || (userID != 0 && withdrawal.UserID != userID) {
			return ErrNotFound
		}
		if withdrawal.Status != constants.WithdrawalStatusPending {
			return ErrWithdrawalStateInvalid
		}
		now := time.Now()
		withdrawal.Status = constants.WithdrawalStatusCanceled
		withdrawal.UpdatedAt = now
		appendWithdrawalNote(withdrawal, now, "user", "canceled")
		return repoTx.Update(withdrawal)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(withdrawalID)
}

// GetByID 查询提现单详情
func (s *WithdrawalService) GetByID(id uint) (*models.Withdrawal, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	withdrawal, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if withdrawal == nil {
		return nil, ErrNotFound
	}
	return withdrawal, nil
}

// List 后台查询提现单列表
func (s *WithdrawalService) List(filter repository.WithdrawalListFilter) ([]models.Withdrawal, int64, error) {
	if s.repo == nil {
		return []models.Withdrawal{}, 0, nil
	}
	return s.repo.List(filter)
}

// ListUserWithdrawals 查询用户提现记录
func (s *WithdrawalService) ListUserWithdrawals(userID uint, page, pageSize int, status string) ([]models.Withdrawal, int64, error) {
	if userID == 0 || s.repo == nil {
		return []models.Withdrawal{}, 0, nil
	}
	return s.repo.List(repository.WithdrawalListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Status:   strings.TrimSpace(status),
	})
}

// recalcWithdrawalAmount 按明细快照重算提现单总额，保持总额恒等于明细之和。
func (s *WithdrawalService) recalcWithdrawalAmount(repoTx repository.WithdrawalRepository, withdrawal *models.Withdrawal, now time.Time) error {
	total, err := repoTx.SumItems(withdrawal.ID)
	if err != nil {
		return err
	}
	withdrawal.Amount = models.NewMoneyFromDecimal(total)
	withdrawal.UpdatedAt = now
	return repoTx.Update(withdrawal)
}

func (s *WithdrawalService) resolveBankAccount(userID, bankAccountID uint) (*models.BankAccount, error) {
	if s.bankAccountRepo == nil {
		return nil, nil
	}
	if bankAccountID != 0 {
		account, err := s.bankAccountRepo.GetByID(bankAccountID)
		if err != nil {
			return nil, err
		}
		if account == nil || account.UserID != userID {
			return nil, ErrBankAccountInvalid
		}
		return account, nil
	}
	return s.bankAccountRepo.GetDefaultByUser(userID)
}

// validateCommissionAttachable 校验佣金可挂入提现单：
// 归属一致、状态为可提现/已审核/已调整、未被打款占用。
func validateCommissionAttachable(commission *models.Commission, userID uint) error {
	if commission == nil {
		return ErrNotFound
	}
	if commission.UserID != userID {
		return ErrReservationConflict
	}
	switch commission.Status {
	case constants.CommissionStatusEligible, constants.CommissionStatusApproved, constants.CommissionStatusAdjusted:
	default:
		return ErrCommissionStateInvalid
	}
	if commission.PaidWithdrawalID != nil {
		return ErrReservationConflict
	}
	return nil
}

func validateWithdrawalAmount(total decimal.Decimal, setting WithdrawalSetting) error {
	if total.LessThanOrEqual(decimal.Zero) {
		return ErrWithdrawalAmountInvalid
	}
	minAmount := decimal.NewFromFloat(setting.MinAmount).Round(2)
	if total.LessThan(minAmount) {
		return fmt.Errorf("%w: 提现总额低于最低限额", ErrWithdrawalAmountInvalid)
	}
	if setting.MaxAmount > 0 {
		maxAmount := decimal.NewFromFloat(setting.MaxAmount).Round(2)
		if total.GreaterThan(maxAmount) {
			return fmt.Errorf("%w: 提现总额超过单笔上限", ErrWithdrawalAmountInvalid)
		}
	}
	return nil
}

func appendWithdrawalNote(withdrawal *models.Withdrawal, at time.Time, actor, note string) {
	text := strings.TrimSpace(note)
	if text == "" {
		return
	}
	entry := buildNoteLogEntry(at, actor, text)
	if withdrawal.NoteLog == "" {
		withdrawal.NoteLog = entry
		return
	}
	withdrawal.NoteLog = withdrawal.NoteLog + "\n" + entry
}

func buildNoteLogEntry(at time.Time, actor, text string) string {
	return fmt.Sprintf("[%s] %s: %s", at.Format(time.RFC3339), actor, text)
}

func generateWithdrawalReferenceNo() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "WDR" + time.Now().Format("20060102") + raw[:10]
}

func dedupeIDs(ids []uint) []uint {
	if len(ids) == 0 {
		return []uint{}
	}
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
