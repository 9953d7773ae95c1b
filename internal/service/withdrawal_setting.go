package service

import (
	"fmt"
	"strings"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
)

const (
	withdrawalMethodsMaxSize = 10
	withdrawalMethodMaxRune  = 50
	withdrawalMinAmountFloor = 0
)

// WithdrawalSetting 提现配置
type WithdrawalSetting struct {
	MinAmount float64  `json:"min_amount"` // 单笔最低提现金额
	MaxAmount float64  `json:"max_amount"` // 单笔最高提现金额（0 表示不限）
	Methods   []string `json:"methods"`    // 允许的打款方式
}

// WithdrawalDefaultSetting 默认提现配置
func WithdrawalDefaultSetting() WithdrawalSetting {
	return NormalizeWithdrawalSetting(WithdrawalSetting{
		MinAmount: 100,
		MaxAmount: 0,
		Methods:   []string{constants.WithdrawalMethodBankTransfer},
	})
}

// NormalizeWithdrawalSetting 归一化提现配置
func NormalizeWithdrawalSetting(setting WithdrawalSetting) WithdrawalSetting {
	setting.MinAmount = roundSettingDecimal(setting.MinAmount)
	if setting.MinAmount < withdrawalMinAmountFloor {
		setting.MinAmount = withdrawalMinAmountFloor
	}
	setting.MaxAmount = roundSettingDecimal(setting.MaxAmount)
	if setting.MaxAmount < 0 {
		setting.MaxAmount = 0
	}
	if setting.MaxAmount > 0 && setting.MaxAmount < setting.MinAmount {
		setting.MaxAmount = setting.MinAmount
	}
	setting.Methods = normalizeWithdrawalMethods(setting.Methods)
	return setting
}

// ValidateWithdrawalSetting 校验提现配置
func ValidateWithdrawalSetting(setting WithdrawalSetting) error {
	normalized := NormalizeWithdrawalSetting(setting)
	if normalized.MinAmount < withdrawalMinAmountFloor {
		return fmt.Errorf("%w: 最低提现金额不能小于 0", ErrWithdrawalConfigInvalid)
	}
	if len(normalized.Methods) == 0 {
		return fmt.Errorf("%w: 至少保留一种提现方式", ErrWithdrawalConfigInvalid)
	}
	return nil
}

// WithdrawalSettingToMap 将提现配置转换为 settings 存储结构
func WithdrawalSettingToMap(setting WithdrawalSetting) map[string]interface{} {
	normalized := NormalizeWithdrawalSetting(setting)
	return map[string]interface{}{
		"min_amount": normalized.MinAmount,
		"max_amount": normalized.MaxAmount,
		"methods":    cloneStringSlice(normalized.Methods),
	}
}

func withdrawalSettingFromJSON(raw models.JSON, fallback WithdrawalSetting) WithdrawalSetting {
	result := fallback

	if minRaw, ok := raw["min_amount"]; ok {
		if parsed, err := parseSettingFloat(minRaw); err == nil {
			result.MinAmount = parsed
		}
	}
	if maxRaw, ok := raw["max_amount"]; ok {
		if parsed, err := parseSettingFloat(maxRaw); err == nil {
			result.MaxAmount = parsed
		}
	}
	if methodsRaw, ok := raw["methods"]; ok {
		result.Methods = normalizeSettingStringList(methodsRaw)
	}

	return NormalizeWithdrawalSetting(result)
}

// GetWithdrawalSetting 获取提现设置（优先 settings，空时回退默认）
func (s *SettingService) GetWithdrawalSetting() (WithdrawalSetting, error) {
	fallback := WithdrawalDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyWithdrawalConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return withdrawalSettingFromJSON(value, fallback), nil
}

// UpdateWithdrawalSetting 更新提现设置
func (s *SettingService) UpdateWithdrawalSetting(setting WithdrawalSetting) (WithdrawalSetting, error) {
	normalized := NormalizeWithdrawalSetting(setting)
	if err := ValidateWithdrawalSetting(normalized); err != nil {
		return WithdrawalDefaultSetting(), err
	}
	if _, err := s.Update(constants.SettingKeyWithdrawalConfig, WithdrawalSettingToMap(normalized)); err != nil {
		return WithdrawalDefaultSetting(), err
	}
	return normalized, nil
}

func normalizeWithdrawalMethods(methods []string) []string {
	if len(methods) == 0 {
		return []string{}
	}

	result := make([]string, 0, len(methods))
	seen := make(map[string]struct{}, len(methods))
	for _, raw := range methods {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		runes := []rune(value)
		if len(runes) > withdrawalMethodMaxRune {
			value = string(runes[:withdrawalMethodMaxRune])
		}
		key := strings.ToLower(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, value)
		if len(result) >= withdrawalMethodsMaxSize {
			break
		}
	}
	return result
}

func containsWithdrawalMethod(methods []string, method string) bool {
	target := strings.ToLower(strings.TrimSpace(method))
	if target == "" {
		return false
	}
	for _, item := range methods {
		if strings.ToLower(strings.TrimSpace(item)) == target {
			return true
		}
	}
	return false
}
