package service

import (
	"fmt"
	"math"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
)

const (
	commissionRateMin         = 0
	commissionRateMax         = 100
	commissionCooldownDaysMin = 0
	commissionCooldownDaysMax = 3650
)

// CommissionSetting 佣金配置
type CommissionSetting struct {
	Enabled              bool    `json:"enabled"`                // 是否启用分销佣金
	DefaultRatePercent   float64 `json:"default_rate_percent"`   // 全局默认佣金比例（百分比）
	CooldownDays         int     `json:"cooldown_days"`          // 冷静期天数（0 表示交付即可提现）
	TriggerStatus        string  `json:"trigger_status"`         // 触发计佣的订单状态
	ReturnPolicy         string  `json:"return_policy"`          // 退货佣金处理策略
	AutoApproveThreshold float64 `json:"auto_approve_threshold"` // 自动审核通过阈值（0 表示关闭）
}

// CommissionDefaultSetting 默认佣金配置
func CommissionDefaultSetting() CommissionSetting {
	return NormalizeCommissionSetting(CommissionSetting{
		Enabled:              false,
		DefaultRatePercent:   0,
		CooldownDays:         14,
		TriggerStatus:        constants.OrderStatusDelivered,
		ReturnPolicy:         constants.ReturnPolicyZeroOnReturn,
		AutoApproveThreshold: 0,
	})
}

// NormalizeCommissionSetting 归一化佣金配置
func NormalizeCommissionSetting(setting CommissionSetting) CommissionSetting {
	setting.DefaultRatePercent = roundSettingDecimal(setting.DefaultRatePercent)
	if setting.DefaultRatePercent < commissionRateMin {
		setting.DefaultRatePercent = commissionRateMin
	}
	if setting.DefaultRatePercent > commissionRateMax {
		setting.DefaultRatePercent = commissionRateMax
	}

	if setting.CooldownDays < commissionCooldownDaysMin {
		setting.CooldownDays = commissionCooldownDaysMin
	}
	if setting.CooldownDays > commissionCooldownDaysMax {
		setting.CooldownDays = commissionCooldownDaysMax
	}

	if setting.TriggerStatus != constants.OrderStatusPaid && setting.TriggerStatus != constants.OrderStatusDelivered {
		setting.TriggerStatus = constants.OrderStatusDelivered
	}
	if setting.ReturnPolicy != constants.ReturnPolicyZeroOnReturn && setting.ReturnPolicy != constants.ReturnPolicyKeepIfPartial {
		setting.ReturnPolicy = constants.ReturnPolicyZeroOnReturn
	}

	setting.AutoApproveThreshold = roundSettingDecimal(setting.AutoApproveThreshold)
	if setting.AutoApproveThreshold < 0 {
		setting.AutoApproveThreshold = 0
	}
	return setting
}

// ValidateCommissionSetting 校验佣金配置
func ValidateCommissionSetting(setting CommissionSetting) error {
	normalized := NormalizeCommissionSetting(setting)
	if normalized.DefaultRatePercent < commissionRateMin || normalized.DefaultRatePercent > commissionRateMax {
		return fmt.Errorf("%w: 默认佣金比例必须在 0-100 之间", ErrCommissionConfigInvalid)
	}
	if normalized.CooldownDays < commissionCooldownDaysMin || normalized.CooldownDays > commissionCooldownDaysMax {
		return fmt.Errorf("%w: 冷静期天数必须在 0-3650 之间", ErrCommissionConfigInvalid)
	}
	if normalized.AutoApproveThreshold < 0 {
		return fmt.Errorf("%w: 自动审核阈值不能小于 0", ErrCommissionConfigInvalid)
	}
	return nil
}

// CommissionSettingToMap 将佣金配置转换为 settings 存储结构
func CommissionSettingToMap(setting CommissionSetting) map[string]interface{} {
	normalized := NormalizeCommissionSetting(setting)
	return map[string]interface{}{
		"enabled":                normalized.Enabled,
		"default_rate_percent":   normalized.DefaultRatePercent,
		"cooldown_days":          normalized.CooldownDays,
		"trigger_status":         normalized.TriggerStatus,
		"return_policy":          normalized.ReturnPolicy,
		"auto_approve_threshold": normalized.AutoApproveThreshold,
	}
}

func commissionSettingFromJSON(raw models.JSON, fallback CommissionSetting) CommissionSetting {
	result := fallback

	if enabledRaw, ok := raw["enabled"]; ok {
		result.Enabled = parseSettingBool(enabledRaw)
	}
	if rateRaw, ok := raw["default_rate_percent"]; ok {
		if parsed, err := parseSettingFloat(rateRaw); err == nil {
			result.DefaultRatePercent = parsed
		}
	}
	if cooldownRaw, ok := raw["cooldown_days"]; ok {
		if parsed, err := parseSettingInt(cooldownRaw); err == nil {
			result.CooldownDays = parsed
		}
	}
	if triggerRaw, ok := raw["trigger_status"]; ok {
		result.TriggerStatus = normalizeSettingText(triggerRaw)
	}
	if policyRaw, ok := raw["return_policy"]; ok {
		result.ReturnPolicy = normalizeSettingText(policyRaw)
	}
	if thresholdRaw, ok := raw["auto_approve_threshold"]; ok {
		if parsed, err := parseSettingFloat(thresholdRaw); err == nil {
			result.AutoApproveThreshold = parsed
		}
	}

	return NormalizeCommissionSetting(result)
}

// GetCommissionSetting 获取佣金设置（优先 settings，空时回退默认）
func (s *SettingService) GetCommissionSetting() (CommissionSetting, error) {
	fallback := CommissionDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyCommissionConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return commissionSettingFromJSON(value, fallback), nil
}

// UpdateCommissionSetting 更新佣金设置
func (s *SettingService) UpdateCommissionSetting(setting CommissionSetting) (CommissionSetting, error) {
	normalized := NormalizeCommissionSetting(setting)
	if err := ValidateCommissionSetting(normalized); err != nil {
		return CommissionDefaultSetting(), err
	}
	if _, err := s.Update(constants.SettingKeyCommissionConfig, CommissionSettingToMap(normalized)); err != nil {
		return CommissionDefaultSetting(), err
	}
	return normalized, nil
}

func roundSettingDecimal(value float64) float64 {
	return math.Round(value*100) / 100
}
