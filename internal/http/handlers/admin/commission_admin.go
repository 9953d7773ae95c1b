package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/repository"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ListCommissions 管理端佣金列表
func (h *Handler) ListCommissions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	userID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("user_id")), 10, 64)
	orderID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("order_id")), 10, 64)

	rows, total, err := h.CommissionService.List(repository.CommissionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uint(userID),
		OrderID:  uint(orderID),
		OrderNo:  strings.TrimSpace(c.Query("order_no")),
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "佣金列表查询失败", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetCommission 管理端佣金详情
func (h *Handler) GetCommission(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	row, err := h.CommissionService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "佣金记录不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "佣金查询失败", err)
		return
	}
	response.Success(c, row)
}

// CommissionReviewRequest 佣金审核请求
type CommissionReviewRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// ApproveCommission 审核通过佣金
func (h *Handler) ApproveCommission(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req CommissionReviewRequest
	_ = c.ShouldBindJSON(&req)

	row, err := h.CommissionService.Approve(adminID, uint(id), req.Note)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "佣金记录不存在", nil)
		case errors.Is(err, service.ErrCommissionStateInvalid):
			respondError(c, response.CodeBadRequest, "佣金状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}

// RejectCommission 驳回佣金
func (h *Handler) RejectCommission(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req CommissionReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	row, err := h.CommissionService.Reject(adminID, uint(id), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "佣金记录不存在", nil)
		case errors.Is(err, service.ErrRejectReasonRequired):
			respondError(c, response.CodeBadRequest, "驳回操作必须填写原因", nil)
		case errors.Is(err, service.ErrCommissionStateInvalid):
			respondError(c, response.CodeBadRequest, "佣金状态不允许该操作", nil)
		case errors.Is(err, service.ErrReservationConflict):
			respondError(c, response.CodeConflict, "佣金已被其它提现单占用", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}

// CommissionAdjustRequest 佣金调整请求
type CommissionAdjustRequest struct {
	NewAmount string `json:"new_amount" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// AdjustCommission 调整佣金金额（附审计轨迹）
func (h *Handler) AdjustCommission(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req CommissionAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}
	newAmount, err := decimal.NewFromString(strings.TrimSpace(req.NewAmount))
	if err != nil {
		respondError(c, response.CodeBadRequest, "调整金额不合法", nil)
		return
	}

	row, err := h.CommissionService.Adjust(adminID, uint(id), service.CommissionAdjustInput{
		NewAmount: newAmount,
		Reason:    req.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "佣金记录不存在", nil)
		case errors.Is(err, service.ErrAdjustReasonRequired):
			respondError(c, response.CodeBadRequest, "佣金调整必须填写原因", nil)
		case errors.Is(err, service.ErrCommissionStateInvalid):
			respondError(c, response.CodeBadRequest, "佣金状态不允许该操作", nil)
		case errors.Is(err, service.ErrCommissionCalcInvalid):
			respondError(c, response.CodeBadRequest, "调整金额不合法", nil)
		case errors.Is(err, service.ErrReservationConflict):
			respondError(c, response.CodeConflict, "佣金已被其它提现单占用", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}
