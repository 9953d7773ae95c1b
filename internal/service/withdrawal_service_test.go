package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupWithdrawalServiceTest(t *testing.T, setting WithdrawalSetting) (*WithdrawalService, *gorm.DB) {
	t.Helper()
	db := openCommissionTestDB(t, "withdrawal_service")

	if len(setting.Methods) == 0 {
		setting.Methods = []string{constants.WithdrawalMethodBankTransfer}
	}
	settingSvc := NewSettingService(newMockSettingRepo())
	if _, err := settingSvc.UpdateWithdrawalSetting(setting); err != nil {
		t.Fatalf("init withdrawal setting failed: %v", err)
	}

	commissionSvc := NewCommissionService(
		repository.NewCommissionRepository(db),
		repository.NewOrderRepository(db),
		repository.NewUserRepository(db),
		settingSvc,
	)
	withdrawalSvc := NewWithdrawalService(
		repository.NewWithdrawalRepository(db),
		repository.NewCommissionRepository(db),
		repository.NewBankAccountRepository(db),
		repository.NewUserRepository(db),
		commissionSvc,
		settingSvc,
	)
	return withdrawalSvc, db
}

func createEligibleCommission(t *testing.T, db *gorm.DB, userID uint, orderID uint, amount int64) *models.Commission {
	t.Helper()
	now := time.Now()
	commission := &models.Commission{
		UserID:     userID,
		OrderID:    orderID,
		Currency:   "MAD",
		Amount:     models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		Status:     constants.CommissionStatusEligible,
		EligibleAt: &now,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}
	return commission
}

func TestCreateWithdrawalByCommissionIDs(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 50})

	user := createCommissionTestUser(t, db, "wd-ids@example.com", "WDID0001")
	first := createEligibleCommission(t, db, user.ID, 1, 40)
	second := createEligibleCommission(t, db, user.ID, 2, 60)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{
		CommissionIDs: []uint{first.ID, second.ID},
		Note:          "monthly payout",
	})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if withdrawal.Status != constants.WithdrawalStatusPending {
		t.Fatalf("expected pending status, got %s", withdrawal.Status)
	}
	if withdrawal.Amount.Decimal.StringFixed(2) != "100.00" {
		t.Fatalf("expected amount 100.00, got %s", withdrawal.Amount.Decimal.StringFixed(2))
	}
	if withdrawal.Method != constants.WithdrawalMethodBankTransfer {
		t.Fatalf("expected default method, got %s", withdrawal.Method)
	}
	if withdrawal.ReferenceNo == "" {
		t.Fatal("expected reference number generated")
	}
	if withdrawal.NoteLog == "" {
		t.Fatal("expected note log recorded")
	}

	var items []models.WithdrawalItem
	if err := db.Where("withdrawal_id = ?", withdrawal.ID).Find(&items).Error; err != nil {
		t.Fatalf("load items failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	// 明细金额是申请时刻的快照
	for _, item := range items {
		if item.Amount.Decimal.IsZero() {
			t.Fatalf("expected snapshot amount on item %d", item.ID)
		}
	}
}

func TestCreateWithdrawalByAmountGreedy(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-greedy@example.com", "WDGR0001")
	createEligibleCommission(t, db, user.ID, 1, 20)
	createEligibleCommission(t, db, user.ID, 2, 30)
	createEligibleCommission(t, db, user.ID, 3, 50)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{
		Amount: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	// 按生成顺序贪心挑选 20+30，不拆分佣金，总额可超出申请金额
	if withdrawal.Amount.Decimal.StringFixed(2) != "50.00" {
		t.Fatalf("expected amount 50.00, got %s", withdrawal.Amount.Decimal.StringFixed(2))
	}

	var count int64
	if err := db.Model(&models.WithdrawalItem{}).Where("withdrawal_id = ?", withdrawal.ID).Count(&count).Error; err != nil {
		t.Fatalf("count items failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 items selected, got %d", count)
	}
}

func TestCreateWithdrawalInsufficient(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-short@example.com", "WDSH0001")
	createEligibleCommission(t, db, user.ID, 1, 30)

	if _, err := svc.Create(user.ID, WithdrawalCreateInput{Amount: decimal.NewFromInt(100)}); !errors.Is(err, ErrWithdrawalInsufficient) {
		t.Fatalf("expected ErrWithdrawalInsufficient, got %v", err)
	}
}

func TestCreateWithdrawalBelowMinAmount(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 100})

	user := createCommissionTestUser(t, db, "wd-min@example.com", "WDMN0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 60)

	if _, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}}); !errors.Is(err, ErrWithdrawalAmountInvalid) {
		t.Fatalf("expected ErrWithdrawalAmountInvalid, got %v", err)
	}
}

func TestCreateWithdrawalReservationConflict(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-conflict@example.com", "WDCF0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 80)

	if _, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}}); err != nil {
		t.Fatalf("first withdrawal failed: %v", err)
	}
	// 同一佣金不可挂入第二张活动提现单
	if _, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}}); !errors.Is(err, ErrReservationConflict) {
		t.Fatalf("expected ErrReservationConflict, got %v", err)
	}
}

func TestCreateWithdrawalMethodInvalid(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-method@example.com", "WDMT0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 80)

	if _, err := svc.Create(user.ID, WithdrawalCreateInput{
		CommissionIDs: []uint{commission.ID},
		Method:        "paypal",
	}); !errors.Is(err, ErrWithdrawalMethodInvalid) {
		t.Fatalf("expected ErrWithdrawalMethodInvalid, got %v", err)
	}
}

func TestAttachAndDetachRecalcAmount(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-attach@example.com", "WDAT0001")
	first := createEligibleCommission(t, db, user.ID, 1, 30)
	second := createEligibleCommission(t, db, user.ID, 2, 20)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{first.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}

	attached, err := svc.AttachCommission(user.ID, withdrawal.ID, second.ID)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if attached.Amount.Decimal.StringFixed(2) != "50.00" {
		t.Fatalf("expected amount 50.00 after attach, got %s", attached.Amount.Decimal.StringFixed(2))
	}

	detached, err := svc.DetachCommission(user.ID, withdrawal.ID, first.ID)
	if err != nil {
		t.Fatalf("detach failed: %v", err)
	}
	if detached.Amount.Decimal.StringFixed(2) != "20.00" {
		t.Fatalf("expected amount 20.00 after detach, got %s", detached.Amount.Decimal.StringFixed(2))
	}

	if _, err := svc.DetachCommission(user.ID, withdrawal.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeated detach, got %v", err)
	}
}

func TestApproveWritesReservationMark(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-approve@example.com", "WDAP0001")
	first := createEligibleCommission(t, db, user.ID, 1, 30)
	second := createEligibleCommission(t, db, user.ID, 2, 40)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{first.ID, second.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}

	approved, err := svc.Approve(9, withdrawal.ID, "checked")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != constants.WithdrawalStatusApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}
	if approved.ApprovedAt == nil || approved.ProcessedBy == nil || *approved.ProcessedBy != 9 {
		t.Fatalf("expected approval metadata recorded: %+v", approved)
	}

	var commissions []models.Commission
	if err := db.Where("id IN ?", []uint{first.ID, second.ID}).Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions failed: %v", err)
	}
	for _, commission := range commissions {
		if commission.PaidWithdrawalID == nil || *commission.PaidWithdrawalID != withdrawal.ID {
			t.Fatalf("expected paid_withdrawal_id=%d on commission %d", withdrawal.ID, commission.ID)
		}
	}
}

func TestRejectAfterApproveReleasesCommissions(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-reject@example.com", "WDRJ0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 70)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if _, err := svc.Approve(9, withdrawal.ID, ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if _, err := svc.Reject(9, withdrawal.ID, ""); !errors.Is(err, ErrRejectReasonRequired) {
		t.Fatalf("expected ErrRejectReasonRequired, got %v", err)
	}

	rejected, err := svc.Reject(9, withdrawal.ID, "bank account mismatch")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != constants.WithdrawalStatusRejected || rejected.RejectReason != "bank account mismatch" {
		t.Fatalf("unexpected rejected withdrawal: %+v", rejected)
	}

	var reloaded models.Commission
	db.First(&reloaded, commission.ID)
	// 驳回后佣金释放回可提现池
	if reloaded.PaidWithdrawalID != nil {
		t.Fatalf("expected paid_withdrawal_id cleared, got %v", *reloaded.PaidWithdrawalID)
	}

	eligible, err := svc.ListEligibleCommissions(user.ID)
	if err != nil {
		t.Fatalf("list eligible failed: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != commission.ID {
		t.Fatalf("expected commission back in eligible pool, got %d rows", len(eligible))
	}
}

func TestMarkAsPaidSharedTimestamp(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-paid@example.com", "WDPD0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 90)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if _, err := svc.Approve(9, withdrawal.ID, ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := svc.MarkInPayment(9, withdrawal.ID, "TRX-001"); err != nil {
		t.Fatalf("mark in payment failed: %v", err)
	}

	paid, err := svc.MarkAsPaid(9, withdrawal.ID, WithdrawalPaidInput{PaymentRef: "TRX-001-DONE"})
	if err != nil {
		t.Fatalf("mark as paid failed: %v", err)
	}
	if paid.Status != constants.WithdrawalStatusPaid || paid.PaidAt == nil {
		t.Fatalf("unexpected paid withdrawal: %+v", paid)
	}
	if paid.PaymentRef != "TRX-001-DONE" {
		t.Fatalf("expected payment ref updated, got %q", paid.PaymentRef)
	}

	var reloaded models.Commission
	db.First(&reloaded, commission.ID)
	if reloaded.Status != constants.CommissionStatusPaid {
		t.Fatalf("expected commission paid, got %s", reloaded.Status)
	}
	if reloaded.PaidAt == nil || !reloaded.PaidAt.Equal(*paid.PaidAt) {
		t.Fatalf("expected shared paid timestamp, withdrawal=%v commission=%v", paid.PaidAt, reloaded.PaidAt)
	}
}

func TestMarkAsPaidRequiresApprovedState(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-state@example.com", "WDST0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 90)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if _, err := svc.MarkAsPaid(9, withdrawal.ID, WithdrawalPaidInput{}); !errors.Is(err, ErrWithdrawalStateInvalid) {
		t.Fatalf("expected ErrWithdrawalStateInvalid, got %v", err)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-cancel@example.com", "WDCL0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 50)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}

	canceled, err := svc.Cancel(user.ID, withdrawal.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != constants.WithdrawalStatusCanceled {
		t.Fatalf("expected canceled status, got %s", canceled.Status)
	}

	// 取消后佣金可重新申请提现
	second, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("re-create after cancel failed: %v", err)
	}
	if second.ID == withdrawal.ID {
		t.Fatal("expected a new withdrawal record")
	}

	if _, err := svc.Cancel(user.ID, second.ID); err != nil {
		t.Fatalf("cancel second failed: %v", err)
	}
	if _, err := svc.Cancel(user.ID, second.ID); !errors.Is(err, ErrWithdrawalStateInvalid) {
		t.Fatalf("expected ErrWithdrawalStateInvalid on double cancel, got %v", err)
	}
}

func TestCancelOwnershipEnforced(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	owner := createCommissionTestUser(t, db, "wd-owner@example.com", "WDOW0001")
	intruder := createCommissionTestUser(t, db, "wd-intruder@example.com", "WDIN0001")
	commission := createEligibleCommission(t, db, owner.ID, 1, 50)

	withdrawal, err := svc.Create(owner.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if _, err := svc.Cancel(intruder.ID, withdrawal.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner cancel, got %v", err)
	}
}

func TestApproveEmptyWithdrawalRejected(t *testing.T) {
	svc, db := setupWithdrawalServiceTest(t, WithdrawalSetting{MinAmount: 10})

	user := createCommissionTestUser(t, db, "wd-empty@example.com", "WDEM0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 50)

	withdrawal, err := svc.Create(user.ID, WithdrawalCreateInput{CommissionIDs: []uint{commission.ID}})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if _, err := svc.DetachCommission(user.ID, withdrawal.ID, commission.ID); err != nil {
		t.Fatalf("detach failed: %v", err)
	}
	if _, err := svc.Approve(9, withdrawal.ID, ""); !errors.Is(err, ErrWithdrawalAmountInvalid) {
		t.Fatalf("expected ErrWithdrawalAmountInvalid for empty withdrawal, got %v", err)
	}
}

func TestCreateWithdrawalConcurrentExclusive(t *testing.T) {
	// 文件库走真实写锁，验证同一佣金并发申请只有一单成功
	dsn := fmt.Sprintf("file:%s/withdrawal_race.db?_pragma=busy_timeout(5000)", t.TempDir())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Commission{},
		&models.Withdrawal{},
		&models.WithdrawalItem{},
		&models.BankAccount{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	settingSvc := NewSettingService(newMockSettingRepo())
	if _, err := settingSvc.UpdateWithdrawalSetting(WithdrawalSetting{
		MinAmount: 10,
		Methods:   []string{constants.WithdrawalMethodBankTransfer},
	}); err != nil {
		t.Fatalf("init withdrawal setting failed: %v", err)
	}
	commissionSvc := NewCommissionService(
		repository.NewCommissionRepository(db),
		repository.NewOrderRepository(db),
		repository.NewUserRepository(db),
		settingSvc,
	)
	svc := NewWithdrawalService(
		repository.NewWithdrawalRepository(db),
		repository.NewCommissionRepository(db),
		repository.NewBankAccountRepository(db),
		repository.NewUserRepository(db),
		commissionSvc,
		settingSvc,
	)

	user := createCommissionTestUser(t, db, "wd-race@example.com", "WDRC0001")
	commission := createEligibleCommission(t, db, user.ID, 1, 200)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Create(user.ID, WithdrawalCreateInput{
				CommissionIDs: []uint{commission.ID},
			})
		}(i)
	}
	wg.Wait()

	// 败者可能收到占用冲突或数据库写锁错误，成功者只能有一个
	success := 0
	for _, createErr := range results {
		if createErr == nil {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one successful withdrawal, got %d (errors: %v)", success, results)
	}

	var reservations int64
	err = db.Model(&models.WithdrawalItem{}).
		Joins("JOIN withdrawals w ON w.id = withdrawal_items.withdrawal_id").
		Where("withdrawal_items.commission_id = ? AND w.status NOT IN ?",
			commission.ID, constants.WithdrawalInactiveStatuses).
		Count(&reservations).Error
	if err != nil {
		t.Fatalf("count reservations failed: %v", err)
	}
	if reservations != 1 {
		t.Fatalf("expected commission reserved by exactly one withdrawal, got %d", reservations)
	}
}
