package service

import (
	"errors"
	"testing"

	"github.com/affilia-next/internal/repository"
)

func setupBankAccountServiceTest(t *testing.T) (*BankAccountService, uint) {
	t.Helper()
	db := openCommissionTestDB(t, "bank_account_service")
	user := createCommissionTestUser(t, db, "bank@example.com", "BANK0001")
	return NewBankAccountService(repository.NewBankAccountRepository(db)), user.ID
}

func TestCreateBankAccountFirstBecomesDefault(t *testing.T) {
	svc, userID := setupBankAccountServiceTest(t)

	first, err := svc.Create(userID, BankAccountInput{
		Holder:   "Amine Alaoui",
		BankName: "Attijariwafa Bank",
		RIB:      "007 640 0001234567890123",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !first.IsDefault {
		t.Fatal("expected first account to become default")
	}
	// 空格剔除并统一大写
	if first.RIB != "0076400001234567890123" {
		t.Fatalf("unexpected normalized RIB: %q", first.RIB)
	}

	second, err := svc.Create(userID, BankAccountInput{
		Holder:   "Amine Alaoui",
		BankName: "BMCE",
		RIB:      "011 550 0009876543210987",
	})
	if err != nil {
		t.Fatalf("create second failed: %v", err)
	}
	if second.IsDefault {
		t.Fatal("expected second account not default")
	}

	updated, err := svc.SetDefault(userID, second.ID)
	if err != nil {
		t.Fatalf("set default failed: %v", err)
	}
	if !updated.IsDefault {
		t.Fatal("expected second account default after switch")
	}

	accounts, err := svc.List(userID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defaults := 0
	for _, account := range accounts {
		if account.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default account, got %d", defaults)
	}
}

func TestCreateBankAccountInvalidRIB(t *testing.T) {
	svc, userID := setupBankAccountServiceTest(t)

	cases := []string{"", "short", "rib-with-dashes-0123456789", "012345678901234567890123456789012345"}
	for _, rib := range cases {
		if _, err := svc.Create(userID, BankAccountInput{
			Holder:   "Amine Alaoui",
			BankName: "CIH",
			RIB:      rib,
		}); !errors.Is(err, ErrBankAccountInvalid) {
			t.Fatalf("RIB %q: expected ErrBankAccountInvalid, got %v", rib, err)
		}
	}
}

func TestBankAccountOwnershipEnforced(t *testing.T) {
	svc, userID := setupBankAccountServiceTest(t)

	account, err := svc.Create(userID, BankAccountInput{
		Holder:   "Amine Alaoui",
		BankName: "CIH",
		RIB:      "0123456789012345",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	otherUser := userID + 100
	if _, err := svc.Update(otherUser, account.ID, BankAccountInput{
		Holder:   "Someone Else",
		BankName: "CIH",
		RIB:      "0123456789012345",
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner update, got %v", err)
	}
	if err := svc.Delete(otherUser, account.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner delete, got %v", err)
	}

	if err := svc.Delete(userID, account.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	accounts, err := svc.List(userID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(accounts))
	}
}
