package admin

import (
	"errors"

	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetCommissionSettings 获取佣金设置
func (h *Handler) GetCommissionSettings(c *gin.Context) {
	setting, err := h.SettingService.GetCommissionSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "设置读取失败", err)
		return
	}
	response.Success(c, setting)
}

// UpdateCommissionSettings 更新佣金设置
func (h *Handler) UpdateCommissionSettings(c *gin.Context) {
	var req service.CommissionSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	setting, err := h.SettingService.UpdateCommissionSetting(req)
	if err != nil {
		if errors.Is(err, service.ErrCommissionConfigInvalid) {
			respondError(c, response.CodeBadRequest, "佣金配置不合法", nil)
			return
		}
		respondError(c, response.CodeInternal, "设置保存失败", err)
		return
	}
	response.Success(c, setting)
}

// GetWithdrawalSettings 获取提现设置
func (h *Handler) GetWithdrawalSettings(c *gin.Context) {
	setting, err := h.SettingService.GetWithdrawalSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "设置读取失败", err)
		return
	}
	response.Success(c, setting)
}

// UpdateWithdrawalSettings 更新提现设置
func (h *Handler) UpdateWithdrawalSettings(c *gin.Context) {
	var req service.WithdrawalSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	setting, err := h.SettingService.UpdateWithdrawalSetting(req)
	if err != nil {
		if errors.Is(err, service.ErrWithdrawalConfigInvalid) {
			respondError(c, response.CodeBadRequest, "提现配置不合法", nil)
			return
		}
		respondError(c, response.CodeInternal, "设置保存失败", err)
		return
	}
	response.Success(c, setting)
}
