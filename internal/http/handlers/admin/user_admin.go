package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/repository"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListUsers 管理端分销用户列表
func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	rows, total, err := h.UserAuthService.ListUsers(repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "用户列表查询失败", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetUser 管理端分销用户详情（含余额汇总）
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	user, err := h.UserAuthService.GetUserByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "用户不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "用户查询失败", err)
		return
	}
	balance, err := h.CommissionService.GetUserBalance(user.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "余额查询失败", err)
		return
	}
	response.Success(c, gin.H{
		"user": user,
		"balance": gin.H{
			"pending_amount":  balance.PendingAmount.StringFixed(2),
			"eligible_amount": balance.EligibleAmount.StringFixed(2),
			"reserved_amount": balance.ReservedAmount.StringFixed(2),
			"paid_amount":     balance.PaidAmount.StringFixed(2),
		},
	})
}

// UserStatusRequest 用户状态更新请求
type UserStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateUserStatus 启用/禁用分销用户
func (h *Handler) UpdateUserStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req UserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	user, err := h.UserAuthService.SetStatus(uint(id), req.Status)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "用户不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "保存失败", err)
		return
	}
	response.Success(c, user)
}
