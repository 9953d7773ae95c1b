package service

import (
	"errors"
	"testing"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/queue"
	"github.com/affilia-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupOrderServiceTest(t *testing.T, setting CommissionSetting) (*OrderService, *gorm.DB) {
	t.Helper()
	db := openCommissionTestDB(t, "order_service")

	settingSvc := NewSettingService(newMockSettingRepo())
	if _, err := settingSvc.UpdateCommissionSetting(setting); err != nil {
		t.Fatalf("init commission setting failed: %v", err)
	}

	commissionSvc := NewCommissionService(
		repository.NewCommissionRepository(db),
		repository.NewOrderRepository(db),
		repository.NewUserRepository(db),
		settingSvc,
	)
	// 队列关闭时订单事件降级为同步计佣
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("create queue client failed: %v", err)
	}
	orderSvc := NewOrderService(
		repository.NewOrderRepository(db),
		repository.NewUserRepository(db),
		queueClient,
		commissionSvc,
		settingSvc,
	)
	return orderSvc, db
}

func TestIngestWithAffiliateAttribution(t *testing.T) {
	svc, db := setupOrderServiceTest(t, CommissionDefaultSetting())

	buyer := createCommissionTestUser(t, db, "buyer-ingest@example.com", "BUYIN001")
	promoter := createCommissionTestUser(t, db, "promoter-ingest@example.com", "PROMIN01")
	product := createCommissionTestProduct(t, db, "ingest-product", 10, 0)

	order, err := svc.Ingest(OrderIngestInput{
		OrderNo:       "SHOP-1001",
		UserID:        buyer.ID,
		AffiliateCode: " promin01 ",
		TotalAmount:   decimal.NewFromInt(250),
		Items: []OrderIngestItem{
			{ProductID: product.ID, Title: "Ingest Product", UnitPrice: decimal.NewFromInt(125), Quantity: 2, TotalPrice: decimal.NewFromInt(250)},
		},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if order.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", order.Status)
	}
	if order.AffiliateUserID == nil || *order.AffiliateUserID != promoter.ID {
		t.Fatalf("expected attribution to promoter %d, got %v", promoter.ID, order.AffiliateUserID)
	}
	if order.AffiliateCode != "PROMIN01" {
		t.Fatalf("expected normalized code PROMIN01, got %s", order.AffiliateCode)
	}
	if order.Currency != "MAD" {
		t.Fatalf("expected default currency MAD, got %s", order.Currency)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}

	// 相同单号重复接入返回已有订单
	again, err := svc.Ingest(OrderIngestInput{OrderNo: "SHOP-1001", UserID: buyer.ID})
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if again.ID != order.ID {
		t.Fatalf("expected existing order returned, got %d vs %d", again.ID, order.ID)
	}
}

func TestIngestSelfPurchaseNotAttributed(t *testing.T) {
	svc, db := setupOrderServiceTest(t, CommissionDefaultSetting())

	promoter := createCommissionTestUser(t, db, "self-ingest@example.com", "SELFIN01")

	order, err := svc.Ingest(OrderIngestInput{
		OrderNo:       "SHOP-2001",
		UserID:        promoter.ID,
		AffiliateCode: "SELFIN01",
		TotalAmount:   decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if order.AffiliateUserID != nil {
		t.Fatal("expected no attribution for self purchase")
	}
}

func TestHandleDeliveredTriggersCommission(t *testing.T) {
	svc, db := setupOrderServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       14,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-dlv@example.com", "BUYDL001")
	createCommissionTestUser(t, db, "promoter-dlv@example.com", "PROMDL01")
	product := createCommissionTestProduct(t, db, "dlv-product", 10, 0)

	order, err := svc.Ingest(OrderIngestInput{
		OrderNo:       "SHOP-3001",
		UserID:        buyer.ID,
		AffiliateCode: "PROMDL01",
		TotalAmount:   decimal.NewFromInt(200),
		Items: []OrderIngestItem{
			{ProductID: product.ID, Title: "Dlv Product", UnitPrice: decimal.NewFromInt(200), Quantity: 1, TotalPrice: decimal.NewFromInt(200)},
		},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	delivered, err := svc.HandleDelivered(order.ID)
	if err != nil {
		t.Fatalf("handle delivered failed: %v", err)
	}
	if delivered.Status != constants.OrderStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("unexpected delivered order: %+v", delivered)
	}

	var commissions []models.Commission
	if err := db.Where("order_id = ?", order.ID).Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions failed: %v", err)
	}
	if len(commissions) != 1 {
		t.Fatalf("expected 1 commission after delivery, got %d", len(commissions))
	}
	if commissions[0].Amount.Decimal.StringFixed(2) != "20.00" {
		t.Fatalf("expected commission 20.00, got %s", commissions[0].Amount.Decimal.StringFixed(2))
	}

	// 已交付订单不可重复交付
	if _, err := svc.HandleDelivered(order.ID); !errors.Is(err, ErrOrderStateInvalid) {
		t.Fatalf("expected ErrOrderStateInvalid on double delivery, got %v", err)
	}
}

func TestHandleReturnedAccumulatesRefund(t *testing.T) {
	svc, db := setupOrderServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       0,
		TriggerStatus:      constants.OrderStatusDelivered,
		ReturnPolicy:       constants.ReturnPolicyKeepIfPartial,
	})

	buyer := createCommissionTestUser(t, db, "buyer-ret2@example.com", "BUYRT001")
	createCommissionTestUser(t, db, "promoter-ret2@example.com", "PROMRT01")
	product := createCommissionTestProduct(t, db, "ret2-product", 10, 0)

	order, err := svc.Ingest(OrderIngestInput{
		OrderNo:       "SHOP-4001",
		UserID:        buyer.ID,
		AffiliateCode: "PROMRT01",
		TotalAmount:   decimal.NewFromInt(400),
		Items: []OrderIngestItem{
			{ProductID: product.ID, Title: "Ret2 Product", UnitPrice: decimal.NewFromInt(400), Quantity: 1, TotalPrice: decimal.NewFromInt(400)},
		},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := svc.HandleDelivered(order.ID); err != nil {
		t.Fatalf("handle delivered failed: %v", err)
	}

	returned, err := svc.HandleReturned(order.ID, decimal.NewFromInt(100), "partial")
	if err != nil {
		t.Fatalf("handle returned failed: %v", err)
	}
	if returned.Status != constants.OrderStatusReturned || returned.ReturnedAt == nil {
		t.Fatalf("unexpected returned order: %+v", returned)
	}
	if returned.RefundedAmount.Decimal.StringFixed(2) != "100.00" {
		t.Fatalf("expected refunded 100.00, got %s", returned.RefundedAmount.Decimal.StringFixed(2))
	}

	// 退货可多次发生，退款金额累计且不超过订单总额
	returned, err = svc.HandleReturned(order.ID, decimal.NewFromInt(500), "rest")
	if err != nil {
		t.Fatalf("second return failed: %v", err)
	}
	if returned.RefundedAmount.Decimal.StringFixed(2) != "400.00" {
		t.Fatalf("expected refunded capped at 400.00, got %s", returned.RefundedAmount.Decimal.StringFixed(2))
	}

	var commission models.Commission
	if err := db.Where("order_id = ?", order.ID).First(&commission).Error; err != nil {
		t.Fatalf("load commission failed: %v", err)
	}
	// 全额退款后佣金清零并驳回
	if !commission.Amount.Decimal.IsZero() || commission.Status != constants.CommissionStatusRejected {
		t.Fatalf("expected zeroed rejected commission, got %s %s", commission.Amount.Decimal.StringFixed(2), commission.Status)
	}
}

func TestHandleCanceledRejectsCommissions(t *testing.T) {
	svc, db := setupOrderServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       0,
		TriggerStatus:      constants.OrderStatusDelivered,
	})

	buyer := createCommissionTestUser(t, db, "buyer-cncl@example.com", "BUYCN001")
	createCommissionTestUser(t, db, "promoter-cncl@example.com", "PROMCN01")
	product := createCommissionTestProduct(t, db, "cncl-product", 10, 0)

	order, err := svc.Ingest(OrderIngestInput{
		OrderNo:       "SHOP-5001",
		UserID:        buyer.ID,
		AffiliateCode: "PROMCN01",
		TotalAmount:   decimal.NewFromInt(150),
		Items: []OrderIngestItem{
			{ProductID: product.ID, Title: "Cncl Product", UnitPrice: decimal.NewFromInt(150), Quantity: 1, TotalPrice: decimal.NewFromInt(150)},
		},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := svc.HandleDelivered(order.ID); err != nil {
		t.Fatalf("handle delivered failed: %v", err)
	}

	canceled, err := svc.HandleCanceled(order.ID, "customer request")
	if err != nil {
		t.Fatalf("handle canceled failed: %v", err)
	}
	if canceled.Status != constants.OrderStatusCanceled || canceled.CanceledAt == nil {
		t.Fatalf("unexpected canceled order: %+v", canceled)
	}

	var commission models.Commission
	if err := db.Where("order_id = ?", order.ID).First(&commission).Error; err != nil {
		t.Fatalf("load commission failed: %v", err)
	}
	if commission.Status != constants.CommissionStatusRejected {
		t.Fatalf("expected rejected commission after cancel, got %s", commission.Status)
	}
	if commission.InvalidReason != "customer request" {
		t.Fatalf("expected cancel reason recorded, got %q", commission.InvalidReason)
	}
}

func TestIngestWithPaidTriggerCalculatesImmediately(t *testing.T) {
	svc, db := setupOrderServiceTest(t, CommissionSetting{
		Enabled:            true,
		DefaultRatePercent: 10,
		CooldownDays:       0,
		TriggerStatus:      constants.OrderStatusPaid,
	})

	buyer := createCommissionTestUser(t, db, "buyer-paidtrig@example.com", "BUYPT001")
	createCommissionTestUser(t, db, "promoter-paidtrig@example.com", "PROMPT01")
	product := createCommissionTestProduct(t, db, "paidtrig-product", 10, 0)

	// 触发状态为已支付时接入即计佣，无需等待交付事件
	order, err := svc.Ingest(OrderIngestInput{
		OrderNo:       "SHOP-6001",
		UserID:        buyer.ID,
		AffiliateCode: "PROMPT01",
		TotalAmount:   decimal.NewFromInt(200),
		Items: []OrderIngestItem{
			{ProductID: product.ID, Title: "PaidTrig Product", UnitPrice: decimal.NewFromInt(200), Quantity: 1, TotalPrice: decimal.NewFromInt(200)},
		},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	var commissions []models.Commission
	if err := db.Where("order_id = ?", order.ID).Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions failed: %v", err)
	}
	if len(commissions) != 1 {
		t.Fatalf("expected 1 commission after paid-trigger ingest, got %d", len(commissions))
	}
	if commissions[0].Amount.Decimal.StringFixed(2) != "20.00" {
		t.Fatalf("expected commission 20.00, got %s", commissions[0].Amount.Decimal.StringFixed(2))
	}
	if commissions[0].Status != constants.CommissionStatusEligible {
		t.Fatalf("expected eligible status with zero cooldown, got %s", commissions[0].Status)
	}
}
