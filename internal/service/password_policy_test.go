package service

import (
	"errors"
	"testing"

	"github.com/affilia-next/internal/config"
)

func TestValidatePasswordPolicyDisabled(t *testing.T) {
	if err := validatePassword(config.PasswordPolicyConfig{}, "1"); err != nil {
		t.Fatalf("expected empty policy to accept any password, got %v", err)
	}
}

func TestValidatePasswordMinLength(t *testing.T) {
	policy := config.PasswordPolicyConfig{MinLength: 8}
	if err := validatePassword(policy, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := validatePassword(policy, "longenough"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestValidatePasswordCharacterClasses(t *testing.T) {
	policy := config.PasswordPolicyConfig{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireNumber:  true,
		RequireSpecial: true,
	}

	cases := []struct {
		password string
		ok       bool
	}{
		{"abcdefg1!", false}, // 缺大写
		{"ABCDEFG1!", false}, // 缺小写
		{"Abcdefgh!", false}, // 缺数字
		{"Abcdefg12", false}, // 缺特殊字符
		{"Abcdefg1!", true},
	}
	for _, tc := range cases {
		err := validatePassword(policy, tc.password)
		if tc.ok && err != nil {
			t.Fatalf("password %q: expected pass, got %v", tc.password, err)
		}
		if !tc.ok && !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("password %q: expected ErrWeakPassword, got %v", tc.password, err)
		}
	}
}
