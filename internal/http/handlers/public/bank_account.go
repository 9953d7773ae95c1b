package public

import (
	"errors"
	"strconv"

	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListBankAccounts 查询我的收款账户
func (h *Handler) ListBankAccounts(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	rows, err := h.BankAccountService.List(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "收款账户查询失败", err)
		return
	}
	response.Success(c, rows)
}

// CreateBankAccount 新增收款账户
func (h *Handler) CreateBankAccount(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req service.BankAccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	account, err := h.BankAccountService.Create(userID, req)
	if err != nil {
		if errors.Is(err, service.ErrBankAccountInvalid) {
			respondError(c, response.CodeBadRequest, "收款账户信息不合法", nil)
			return
		}
		respondError(c, response.CodeInternal, "保存失败", err)
		return
	}
	response.Success(c, account)
}

// UpdateBankAccount 更新收款账户
func (h *Handler) UpdateBankAccount(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	var req service.BankAccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	account, err := h.BankAccountService.Update(userID, uint(id), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "收款账户不存在", nil)
		case errors.Is(err, service.ErrBankAccountInvalid):
			respondError(c, response.CodeBadRequest, "收款账户信息不合法", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, account)
}

// SetDefaultBankAccount 设置默认收款账户
func (h *Handler) SetDefaultBankAccount(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	account, err := h.BankAccountService.SetDefault(userID, uint(id))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "收款账户不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "保存失败", err)
		return
	}
	response.Success(c, account)
}

// DeleteBankAccount 删除收款账户
func (h *Handler) DeleteBankAccount(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	if err := h.BankAccountService.Delete(userID, uint(id)); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "收款账户不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "删除失败", err)
		return
	}
	response.SuccessWithMsg(c, "删除成功", nil)
}
