package service

import (
	"errors"
	"testing"

	"github.com/affilia-next/internal/constants"
)

func TestCommissionDefaultSetting(t *testing.T) {
	setting := CommissionDefaultSetting()
	if setting.Enabled {
		t.Fatal("expected commission disabled by default")
	}
	if setting.CooldownDays != 14 {
		t.Fatalf("expected default cooldown 14, got %d", setting.CooldownDays)
	}
	if setting.TriggerStatus != constants.OrderStatusDelivered {
		t.Fatalf("expected default trigger delivered, got %s", setting.TriggerStatus)
	}
	if setting.ReturnPolicy != constants.ReturnPolicyZeroOnReturn {
		t.Fatalf("expected default return policy zero_on_return, got %s", setting.ReturnPolicy)
	}
}

func TestNormalizeCommissionSetting(t *testing.T) {
	setting := NormalizeCommissionSetting(CommissionSetting{
		Enabled:              true,
		DefaultRatePercent:   150,
		CooldownDays:         -5,
		TriggerStatus:        "shipped",
		ReturnPolicy:         "refund_all",
		AutoApproveThreshold: -10,
	})
	if setting.DefaultRatePercent != 100 {
		t.Fatalf("expected rate clamped to 100, got %v", setting.DefaultRatePercent)
	}
	if setting.CooldownDays != 0 {
		t.Fatalf("expected cooldown clamped to 0, got %d", setting.CooldownDays)
	}
	if setting.TriggerStatus != constants.OrderStatusDelivered {
		t.Fatalf("expected invalid trigger reset to delivered, got %s", setting.TriggerStatus)
	}
	if setting.ReturnPolicy != constants.ReturnPolicyZeroOnReturn {
		t.Fatalf("expected invalid policy reset to zero_on_return, got %s", setting.ReturnPolicy)
	}
	if setting.AutoApproveThreshold != 0 {
		t.Fatalf("expected negative threshold reset to 0, got %v", setting.AutoApproveThreshold)
	}
}

func TestCommissionSettingRoundTrip(t *testing.T) {
	settingSvc := NewSettingService(newMockSettingRepo())

	updated, err := settingSvc.UpdateCommissionSetting(CommissionSetting{
		Enabled:              true,
		DefaultRatePercent:   12.5,
		CooldownDays:         7,
		TriggerStatus:        constants.OrderStatusPaid,
		ReturnPolicy:         constants.ReturnPolicyKeepIfPartial,
		AutoApproveThreshold: 50,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DefaultRatePercent != 12.5 {
		t.Fatalf("expected rate 12.5, got %v", updated.DefaultRatePercent)
	}

	loaded, err := settingSvc.GetCommissionSetting()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.Enabled || loaded.DefaultRatePercent != 12.5 || loaded.CooldownDays != 7 {
		t.Fatalf("unexpected loaded setting: %+v", loaded)
	}
	if loaded.TriggerStatus != constants.OrderStatusPaid || loaded.ReturnPolicy != constants.ReturnPolicyKeepIfPartial {
		t.Fatalf("unexpected loaded setting: %+v", loaded)
	}
	if loaded.AutoApproveThreshold != 50 {
		t.Fatalf("expected threshold 50, got %v", loaded.AutoApproveThreshold)
	}
}

func TestGetCommissionSettingFallback(t *testing.T) {
	settingSvc := NewSettingService(newMockSettingRepo())

	loaded, err := settingSvc.GetCommissionSetting()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded != CommissionDefaultSetting() {
		t.Fatalf("expected default fallback, got %+v", loaded)
	}
}

func TestWithdrawalDefaultSetting(t *testing.T) {
	setting := WithdrawalDefaultSetting()
	if setting.MinAmount != 100 {
		t.Fatalf("expected default min 100, got %v", setting.MinAmount)
	}
	if setting.MaxAmount != 0 {
		t.Fatalf("expected unlimited max by default, got %v", setting.MaxAmount)
	}
	if len(setting.Methods) != 1 || setting.Methods[0] != constants.WithdrawalMethodBankTransfer {
		t.Fatalf("expected bank_transfer as only default method, got %v", setting.Methods)
	}
}

func TestWithdrawalSettingRoundTrip(t *testing.T) {
	settingSvc := NewSettingService(newMockSettingRepo())

	if _, err := settingSvc.UpdateWithdrawalSetting(WithdrawalSetting{
		MinAmount: 200,
		MaxAmount: 5000,
		Methods:   []string{constants.WithdrawalMethodBankTransfer},
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	loaded, err := settingSvc.GetWithdrawalSetting()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.MinAmount != 200 || loaded.MaxAmount != 5000 {
		t.Fatalf("unexpected loaded setting: %+v", loaded)
	}
}

func TestNormalizeWithdrawalSettingClampsMax(t *testing.T) {
	setting := NormalizeWithdrawalSetting(WithdrawalSetting{
		MinAmount: 500,
		MaxAmount: 100,
		Methods:   []string{constants.WithdrawalMethodBankTransfer, "Bank_Transfer", ""},
	})
	// 上限低于下限时抬升到下限，方式去重去空
	if setting.MaxAmount != 500 {
		t.Fatalf("expected max clamped to 500, got %v", setting.MaxAmount)
	}
	if len(setting.Methods) != 1 {
		t.Fatalf("expected deduplicated methods, got %v", setting.Methods)
	}
}

func TestUpdateWithdrawalSettingRequiresMethod(t *testing.T) {
	settingSvc := NewSettingService(newMockSettingRepo())

	if _, err := settingSvc.UpdateWithdrawalSetting(WithdrawalSetting{MinAmount: 100}); !errors.Is(err, ErrWithdrawalConfigInvalid) {
		t.Fatalf("expected ErrWithdrawalConfigInvalid, got %v", err)
	}
}
