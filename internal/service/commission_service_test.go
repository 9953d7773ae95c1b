package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type mockSettingRepo struct {
	store map[string]models.JSON
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{store: map[string]models.JSON{}}
}

func (m *mockSettingRepo) GetByKey(key string) (*models.Setting, error) {
	value, ok := m.store[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func (m *mockSettingRepo) Upsert(key string, value models.JSON) (*models.Setting, error) {
	m.store[key] = value
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func openCommissionTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Commission{},
		&models.Withdrawal{},
		&models.WithdrawalItem{},
		&models.BankAccount{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func setupCommissionServiceTest(t *testing.T, setting CommissionSetting) (*CommissionService, *gorm.DB) {
	t.Helper()
	db := openCommissionTestDB(t, "commission_service")

	settingSvc := NewSettingService(newMockSettingRepo())
	if _, err := settingSvc.UpdateCommissionSetting(setting); err != nil {
		t.Fatalf("init commission setting failed: %v", err)
	}

	svc := NewCommissionService(
		repository.NewCommissionRepository(db),
		repository.NewOrderRepository(db),
		repository.NewUserRepository(db),
		settingSvc,
	)
	return svc, db
}

func createCommissionTestUser(t *testing.T, db *gorm.DB, email, code string) *models.User {
	t.Helper()
	user := &models.User{
		Email:         email,
		PasswordHash:  "x",
		AffiliateCode: code,
		Status:        constants.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func createCommissionTestProduct(t *testing.T, db *gorm.DB, slug string, ratePercent, fixedAmount float64) *models.Product {
	t.Helper()
	product := &models.Product{
		Slug:                  slug,
		Title:                 slug,
		Price:                 models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		IsCommissionable:      true,
		CommissionRatePercent: models.NewMoneyFromDecimal(decimal.NewFromFloat(ratePercent)),
		CommissionFixedAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(fixedAmount)),
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func createDeliveredTestOrder(t *testing.T, db *gorm.DB, buyerID, affiliateID uint, product *models.Product, total float64, quantity int) *models.Order {
	t.Helper()
	now := time.Now()
	order := &models.Order{
		OrderNo:         fmt.Sprintf("ORD-%d", time.Now().UnixNano()),
		UserID:          buyerID,
		AffiliateUserID: &affiliateID,
		Status:          constants.OrderStatusDelivered,
		Currency:        "MAD",
		TotalAmount:     models.NewMoneyFromDecimal(decimal.NewFromFloat(total)),
		DeliveredAt:     &now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	item := &models.OrderItem{
		OrderID:    order.ID,
		ProductID:  product.ID,
		Title:      product.Title,
		UnitPrice:  models.NewMoneyFromDecimal(decimal.NewFromFloat(total / float64(quantity))),
		Quantity:   quantity,
		TotalPrice: models.NewMoneyFromDecimal(decimal.NewFromFloat(total)),
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create order item failed: %v", err)
	}
	return order
}

func TestCalculateForOrderByRate(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       14,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer@example.com", "BUYER001")
	promoter := createCommissionTestUser(t, db, "promoter@example.com", "PROM0001")
	product := createCommissionTestProduct(t, db, "rate-product", 15, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 300, 1)

	report, err := svc.CalculateForOrder(order.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if len(report.Created) != 1 || report.CreatedCount != 1 {
		t.Fatalf("expected 1 commission created, got %d (count %d)", len(report.Created), report.CreatedCount)
	}
	commission := report.Created[0]
	if commission.Amount.Decimal.StringFixed(2) != "45.00" {
		t.Fatalf("expected amount 45.00, got %s", commission.Amount.Decimal.StringFixed(2))
	}
	if commission.Status != constants.CommissionStatusCalculated {
		t.Fatalf("expected status calculated, got %s", commission.Status)
	}
	if commission.EligibleDueAt == nil {
		t.Fatal("expected cooldown due time set")
	}
	if commission.UserID != promoter.ID {
		t.Fatalf("expected commission owned by promoter %d, got %d", promoter.ID, commission.UserID)
	}
}

func TestCalculateForOrderIdempotent(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       14,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-idem@example.com", "BUYER002")
	promoter := createCommissionTestUser(t, db, "promoter-idem@example.com", "PROM0002")
	product := createCommissionTestProduct(t, db, "idem-product", 10, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 200, 1)

	if _, err := svc.CalculateForOrder(order.ID); err != nil {
		t.Fatalf("first calculate failed: %v", err)
	}
	again, err := svc.CalculateForOrder(order.ID)
	if err != nil {
		t.Fatalf("second calculate failed: %v", err)
	}
	if len(again.Created) != 0 {
		t.Fatalf("expected no new commissions on recalculation, got %d", len(again.Created))
	}
	// 配置未变时重算不产生更新
	if again.SkippedCount != 1 || again.UpdatedCount != 0 {
		t.Fatalf("expected 1 skipped outcome, got skipped=%d updated=%d", again.SkippedCount, again.UpdatedCount)
	}

	var count int64
	if err := db.Model(&models.Commission{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count commissions failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 commission row, got %d", count)
	}
}

func TestCalculateForOrderFixedAmountPriority(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       0,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-fixed@example.com", "BUYER003")
	promoter := createCommissionTestUser(t, db, "promoter-fixed@example.com", "PROM0003")
	product := createCommissionTestProduct(t, db, "fixed-product", 50, 5)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 400, 2)

	report, err := svc.CalculateForOrder(order.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if len(report.Created) != 1 {
		t.Fatalf("expected 1 commission, got %d", len(report.Created))
	}
	created := report.Created
	if created[0].Amount.Decimal.StringFixed(2) != "10.00" {
		t.Fatalf("expected fixed amount 5x2=10.00, got %s", created[0].Amount.Decimal.StringFixed(2))
	}
	// 冷静期为 0 天时直接进入可提现状态
	if created[0].Status != constants.CommissionStatusEligible {
		t.Fatalf("expected eligible status with zero cooldown, got %s", created[0].Status)
	}
	if created[0].EligibleAt == nil {
		t.Fatal("expected eligible_at set with zero cooldown")
	}
}

func TestCalculateForOrderSelfPurchaseSkipped(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	promoter := createCommissionTestUser(t, db, "self@example.com", "SELF0001")
	product := createCommissionTestProduct(t, db, "self-product", 10, 0)
	order := createDeliveredTestOrder(t, db, promoter.ID, promoter.ID, product, 100, 1)

	report, err := svc.CalculateForOrder(order.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if len(report.Created) != 0 {
		t.Fatalf("expected no commission for self purchase, got %d", len(report.Created))
	}
}

func TestCalculateForOrderWrongTriggerStatus(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-paid@example.com", "BUYER004")
	promoter := createCommissionTestUser(t, db, "promoter-paid@example.com", "PROM0004")
	product := createCommissionTestProduct(t, db, "paid-product", 10, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 100, 1)
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", constants.OrderStatusPaid).Error; err != nil {
		t.Fatalf("update order status failed: %v", err)
	}

	if _, err := svc.CalculateForOrder(order.ID); !errors.Is(err, ErrOrderStateInvalid) {
		t.Fatalf("expected ErrOrderStateInvalid, got %v", err)
	}
}

func TestCalculateForOrderLineFailureIsolated(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       14,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-iso@example.com", "BUYER007")
	promoter := createCommissionTestUser(t, db, "promoter-iso@example.com", "PROM0007")
	product := createCommissionTestProduct(t, db, "iso-product", 15, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 300, 1)
	// 折扣超出总价的异常订单项，佣金基数为负
	bad := &models.OrderItem{
		OrderID:        order.ID,
		ProductID:      product.ID,
		Title:          "bad line",
		UnitPrice:      models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		Quantity:       1,
		TotalPrice:     models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		DiscountAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(60)),
	}
	if err := db.Create(bad).Error; err != nil {
		t.Fatalf("create bad item failed: %v", err)
	}

	report, err := svc.CalculateForOrder(order.ID)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	// 单项失败只记录该项结果，不回滚批次
	if report.FailedCount != 1 || report.CreatedCount != 1 {
		t.Fatalf("expected 1 failed + 1 created, got failed=%d created=%d", report.FailedCount, report.CreatedCount)
	}
	if len(report.Created) != 1 || report.Created[0].Amount.Decimal.StringFixed(2) != "45.00" {
		t.Fatalf("expected valid line commission 45.00, got %+v", report.Created)
	}
	var count int64
	if err := db.Model(&models.Commission{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count commissions failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 persisted commission, got %d", count)
	}
}

func TestCalculateForOrderRecomputesPendingAmount(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       14,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-recalc@example.com", "BUYER008")
	promoter := createCommissionTestUser(t, db, "promoter-recalc@example.com", "PROM0008")
	product := createCommissionTestProduct(t, db, "recalc-product", 15, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 300, 1)

	first, err := svc.CalculateForOrder(order.ID)
	if err != nil || len(first.Created) != 1 {
		t.Fatalf("first calculate failed: %v", err)
	}
	if first.Created[0].Amount.Decimal.StringFixed(2) != "45.00" {
		t.Fatalf("expected initial amount 45.00, got %s", first.Created[0].Amount.Decimal.StringFixed(2))
	}

	// 商品比例调整后重算更新仍处于已计算状态的佣金
	if err := db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("commission_rate_percent", 20).Error; err != nil {
		t.Fatalf("update product rate failed: %v", err)
	}
	second, err := svc.CalculateForOrder(order.ID)
	if err != nil {
		t.Fatalf("second calculate failed: %v", err)
	}
	if second.UpdatedCount != 1 || len(second.Created) != 0 {
		t.Fatalf("expected 1 updated outcome, got updated=%d created=%d", second.UpdatedCount, len(second.Created))
	}

	var reloaded models.Commission
	db.First(&reloaded, first.Created[0].ID)
	if reloaded.Amount.Decimal.StringFixed(2) != "60.00" {
		t.Fatalf("expected recomputed amount 60.00, got %s", reloaded.Amount.Decimal.StringFixed(2))
	}
	if reloaded.Status != constants.CommissionStatusCalculated {
		t.Fatalf("expected status to stay calculated, got %s", reloaded.Status)
	}
	if reloaded.EligibleDueAt == nil {
		t.Fatal("expected cooldown schedule kept on recomputation")
	}
}

func TestApproveCalculatedBeforeCooldown(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "early@example.com", "EARLY001")
	due := time.Now().Add(72 * time.Hour)
	commission := &models.Commission{
		UserID:        promoter.ID,
		OrderID:       1,
		Currency:      "MAD",
		Amount:        models.NewMoneyFromDecimal(decimal.NewFromInt(25)),
		Status:        constants.CommissionStatusCalculated,
		EligibleDueAt: &due,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}

	// 冷静期未到也允许人工提前审核通过
	approved, err := svc.Approve(3, commission.ID, "early approval")
	if err != nil {
		t.Fatalf("approve calculated failed: %v", err)
	}
	if approved.Status != constants.CommissionStatusApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}
	if approved.EligibleAt == nil || approved.ApprovedAt == nil {
		t.Fatalf("expected eligible/approved timestamps set: %+v", approved)
	}
	if approved.EligibleDueAt != nil {
		t.Fatal("expected cooldown due time cleared")
	}

	rejected := &models.Commission{
		UserID:   promoter.ID,
		OrderID:  2,
		Currency: "MAD",
		Amount:   models.NewMoneyFromDecimal(decimal.NewFromInt(25)),
		Status:   constants.CommissionStatusRejected,
	}
	if err := db.Create(rejected).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}
	if _, err := svc.Approve(3, rejected.ID, ""); !errors.Is(err, ErrCommissionStateInvalid) {
		t.Fatalf("expected ErrCommissionStateInvalid for rejected commission, got %v", err)
	}
}

func TestRejectAdjustedCommission(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "rej-adj@example.com", "REJADJ01")
	commission := &models.Commission{
		UserID:   promoter.ID,
		OrderID:  1,
		Currency: "MAD",
		Amount:   models.NewMoneyFromDecimal(decimal.NewFromInt(35)),
		Status:   constants.CommissionStatusAdjusted,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}

	// 调整后的佣金在打款前仍可驳回
	rejected, err := svc.Reject(1, commission.ID, "fraud review")
	if err != nil {
		t.Fatalf("reject adjusted failed: %v", err)
	}
	if rejected.Status != constants.CommissionStatusRejected || rejected.InvalidReason != "fraud review" {
		t.Fatalf("unexpected rejected commission: %+v", rejected)
	}
}

func TestMarkEligibleDueWithAutoApprove(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:              true,
		DefaultRatePercent:   10,
		CooldownDays:         14,
		TriggerStatus:        constants.OrderStatusDelivered,
		AutoApproveThreshold: 50,
	})

	promoter := createCommissionTestUser(t, db, "sweep@example.com", "SWEEP001")
	past := time.Now().Add(-1 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	small := &models.Commission{
		UserID:        promoter.ID,
		OrderID:       1,
		Currency:      "MAD",
		Amount:        models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
		Status:        constants.CommissionStatusCalculated,
		EligibleDueAt: &past,
	}
	large := &models.Commission{
		UserID:        promoter.ID,
		OrderID:       2,
		Currency:      "MAD",
		Amount:        models.NewMoneyFromDecimal(decimal.NewFromInt(80)),
		Status:        constants.CommissionStatusCalculated,
		EligibleDueAt: &past,
	}
	pending := &models.Commission{
		UserID:        promoter.ID,
		OrderID:       3,
		Currency:      "MAD",
		Amount:        models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		Status:        constants.CommissionStatusCalculated,
		EligibleDueAt: &future,
	}
	for _, row := range []*models.Commission{small, large, pending} {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("create commission failed: %v", err)
		}
	}

	affected, err := svc.MarkEligibleDue(time.Now())
	if err != nil {
		t.Fatalf("mark eligible failed: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 commissions promoted, got %d", affected)
	}

	var reloadedSmall, reloadedLarge, reloadedPending models.Commission
	db.First(&reloadedSmall, small.ID)
	db.First(&reloadedLarge, large.ID)
	db.First(&reloadedPending, pending.ID)

	// 阈值内自动审核通过，阈值外停留在可提现
	if reloadedSmall.Status != constants.CommissionStatusApproved {
		t.Fatalf("expected small commission auto-approved, got %s", reloadedSmall.Status)
	}
	if reloadedLarge.Status != constants.CommissionStatusEligible {
		t.Fatalf("expected large commission eligible, got %s", reloadedLarge.Status)
	}
	if reloadedPending.Status != constants.CommissionStatusCalculated {
		t.Fatalf("expected future commission untouched, got %s", reloadedPending.Status)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "reject@example.com", "REJ00001")
	commission := &models.Commission{
		UserID:   promoter.ID,
		OrderID:  1,
		Currency: "MAD",
		Amount:   models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
		Status:   constants.CommissionStatusEligible,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}

	if _, err := svc.Reject(1, commission.ID, "  "); !errors.Is(err, ErrRejectReasonRequired) {
		t.Fatalf("expected ErrRejectReasonRequired, got %v", err)
	}

	rejected, err := svc.Reject(1, commission.ID, "invalid order")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != constants.CommissionStatusRejected || rejected.InvalidReason != "invalid order" {
		t.Fatalf("unexpected rejected commission: %+v", rejected)
	}
}

func TestAdjustAppendsAuditTrail(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "adjust@example.com", "ADJ00001")
	commission := &models.Commission{
		UserID:   promoter.ID,
		OrderID:  1,
		Currency: "MAD",
		Amount:   models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Status:   constants.CommissionStatusApproved,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}

	if _, err := svc.Adjust(7, commission.ID, CommissionAdjustInput{NewAmount: decimal.NewFromInt(40)}); !errors.Is(err, ErrAdjustReasonRequired) {
		t.Fatalf("expected ErrAdjustReasonRequired, got %v", err)
	}

	adjusted, err := svc.Adjust(7, commission.ID, CommissionAdjustInput{
		NewAmount: decimal.NewFromInt(40),
		Reason:    "amount correction",
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if adjusted.Status != constants.CommissionStatusAdjusted {
		t.Fatalf("expected adjusted status, got %s", adjusted.Status)
	}
	if adjusted.Amount.Decimal.StringFixed(2) != "40.00" {
		t.Fatalf("expected amount 40.00, got %s", adjusted.Amount.Decimal.StringFixed(2))
	}
	if len(adjusted.AdjustmentsJSON) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(adjusted.AdjustmentsJSON))
	}
	entry := adjusted.AdjustmentsJSON[0]
	if entry.OriginalAmount != "50.00" || entry.NewAmount != "40.00" || entry.Difference != "-10.00" {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.ActorAdminID != 7 || entry.PostPayment {
		t.Fatalf("unexpected audit actor/post-payment: %+v", entry)
	}

	// 二次调整追加而不覆盖
	again, err := svc.Adjust(7, commission.ID, CommissionAdjustInput{
		NewAmount: decimal.NewFromInt(45),
		Reason:    "second correction",
	})
	if err != nil {
		t.Fatalf("second adjust failed: %v", err)
	}
	if len(again.AdjustmentsJSON) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(again.AdjustmentsJSON))
	}
}

func TestHandleOrderReturnedZeroOnReturn(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		TriggerStatus:      constants.OrderStatusDelivered,
		ReturnPolicy:       constants.ReturnPolicyZeroOnReturn,
	})

	buyer := createCommissionTestUser(t, db, "buyer-ret@example.com", "BUYER005")
	promoter := createCommissionTestUser(t, db, "promoter-ret@example.com", "PROM0005")
	product := createCommissionTestProduct(t, db, "ret-product", 15, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 300, 1)
	report, err := svc.CalculateForOrder(order.ID)
	if err != nil || len(report.Created) != 1 {
		t.Fatalf("calculate failed: %v (%d rows)", err, len(report.Created))
	}
	created := report.Created

	if err := svc.HandleOrderReturned(order.ID, decimal.NewFromInt(300), "full return"); err != nil {
		t.Fatalf("handle returned failed: %v", err)
	}

	var reloaded models.Commission
	db.First(&reloaded, created[0].ID)
	if reloaded.Status != constants.CommissionStatusRejected {
		t.Fatalf("expected rejected status, got %s", reloaded.Status)
	}
	if !reloaded.Amount.Decimal.IsZero() {
		t.Fatalf("expected zeroed amount, got %s", reloaded.Amount.Decimal.StringFixed(2))
	}
	if reloaded.InvalidReason != "full return" {
		t.Fatalf("expected reason recorded, got %q", reloaded.InvalidReason)
	}
	// 清零以调整记录留痕
	if len(reloaded.AdjustmentsJSON) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(reloaded.AdjustmentsJSON))
	}
	entry := reloaded.AdjustmentsJSON[0]
	if entry.OriginalAmount != "45.00" || entry.NewAmount != "0.00" || entry.Difference != "-45.00" {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestHandleOrderReturnedKeepIfPartial(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 15,
		TriggerStatus:      constants.OrderStatusDelivered,
		ReturnPolicy:       constants.ReturnPolicyKeepIfPartial,
	})

	buyer := createCommissionTestUser(t, db, "buyer-part@example.com", "BUYER006")
	promoter := createCommissionTestUser(t, db, "promoter-part@example.com", "PROM0006")
	product := createCommissionTestProduct(t, db, "part-product", 15, 0)
	order := createDeliveredTestOrder(t, db, buyer.ID, promoter.ID, product, 300, 1)
	report, err := svc.CalculateForOrder(order.ID)
	if err != nil || len(report.Created) != 1 {
		t.Fatalf("calculate failed: %v (%d rows)", err, len(report.Created))
	}
	created := report.Created

	// 模拟订单侧已记录 150 退款后触发佣金逆向
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("refunded_amount", decimal.NewFromInt(150)).Error; err != nil {
		t.Fatalf("update refunded amount failed: %v", err)
	}
	if err := svc.HandleOrderReturned(order.ID, decimal.NewFromInt(150), "partial return"); err != nil {
		t.Fatalf("handle returned failed: %v", err)
	}

	var reloaded models.Commission
	db.First(&reloaded, created[0].ID)
	// 45 * 150/300 = 22.50 扣减，剩余 22.50
	if reloaded.Amount.Decimal.StringFixed(2) != "22.50" {
		t.Fatalf("expected remaining 22.50, got %s", reloaded.Amount.Decimal.StringFixed(2))
	}
	if reloaded.Status == constants.CommissionStatusRejected {
		t.Fatal("partial return should not reject the commission")
	}
	// 扣减以调整记录留痕
	if len(reloaded.AdjustmentsJSON) != 1 || reloaded.AdjustmentsJSON[0].Difference != "-22.50" {
		t.Fatalf("expected deduction audit entry, got %+v", reloaded.AdjustmentsJSON)
	}
}

func TestReversalSkipsReservedCommission(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "reserved@example.com", "RESV0001")
	commission := &models.Commission{
		UserID:   promoter.ID,
		OrderID:  9,
		Currency: "MAD",
		Amount:   models.NewMoneyFromDecimal(decimal.NewFromInt(60)),
		Status:   constants.CommissionStatusEligible,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}
	withdrawal := &models.Withdrawal{
		ReferenceNo: "WD-RESERVED-1",
		UserID:      promoter.ID,
		Amount:      commission.Amount,
		Currency:    "MAD",
		Status:      constants.WithdrawalStatusPending,
		Method:      constants.WithdrawalMethodBankTransfer,
	}
	if err := db.Create(withdrawal).Error; err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	item := &models.WithdrawalItem{
		WithdrawalID: withdrawal.ID,
		CommissionID: commission.ID,
		Amount:       commission.Amount,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create withdrawal item failed: %v", err)
	}

	if err := svc.HandleOrderCanceled(9, "canceled"); err != nil {
		t.Fatalf("handle canceled failed: %v", err)
	}

	var reloaded models.Commission
	db.First(&reloaded, commission.ID)
	// 已被活动提现单占用的佣金逆向时跳过
	if reloaded.Status != constants.CommissionStatusEligible {
		t.Fatalf("expected reserved commission untouched, got %s", reloaded.Status)
	}
}

func TestGetUserBalanceAggregate(t *testing.T) {
	svc, db := setupCommissionServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "balance@example.com", "BAL00001")
	rows := []*models.Commission{
		{UserID: promoter.ID, OrderID: 1, Currency: "MAD", Amount: models.NewMoneyFromDecimal(decimal.NewFromInt(10)), Status: constants.CommissionStatusCalculated},
		{UserID: promoter.ID, OrderID: 2, Currency: "MAD", Amount: models.NewMoneyFromDecimal(decimal.NewFromInt(20)), Status: constants.CommissionStatusEligible},
		{UserID: promoter.ID, OrderID: 3, Currency: "MAD", Amount: models.NewMoneyFromDecimal(decimal.NewFromInt(40)), Status: constants.CommissionStatusPaid},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("create commission failed: %v", err)
		}
	}

	balance, err := svc.GetUserBalance(promoter.ID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance.PendingAmount.StringFixed(2) != "10.00" {
		t.Fatalf("expected pending 10.00, got %s", balance.PendingAmount.StringFixed(2))
	}
	if balance.EligibleAmount.StringFixed(2) != "20.00" {
		t.Fatalf("expected eligible 20.00, got %s", balance.EligibleAmount.StringFixed(2))
	}
	if balance.PaidAmount.StringFixed(2) != "40.00" {
		t.Fatalf("expected paid 40.00, got %s", balance.PaidAmount.StringFixed(2))
	}
}
