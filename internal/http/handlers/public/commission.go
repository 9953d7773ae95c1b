package public

import (
	"strconv"
	"strings"
	"time"

	"github.com/affilia-next/internal/cache"
	"github.com/affilia-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ListMyCommissions 查询我的佣金记录
func (h *Handler) ListMyCommissions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	rows, total, err := h.CommissionService.ListUserCommissions(userID, page, pageSize, strings.TrimSpace(c.Query("status")))
	if err != nil {
		respondError(c, response.CodeInternal, "佣金记录查询失败", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ListEligibleCommissions 查询可挂入提现单的佣金
func (h *Handler) ListEligibleCommissions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	rows, err := h.WithdrawalService.ListEligibleCommissions(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "可提现佣金查询失败", err)
		return
	}
	response.Success(c, rows)
}

// GetMyBalance 查询我的佣金余额汇总（短 TTL 缓存）
func (h *Handler) GetMyBalance(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	if snapshot, hit, err := cache.GetUserBalance(c.Request.Context(), userID); err == nil && hit {
		response.Success(c, snapshot)
		return
	}

	balance, err := h.CommissionService.GetUserBalance(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "余额查询失败", err)
		return
	}
	snapshot := &cache.UserBalanceSnapshot{
		UserID:         userID,
		PendingAmount:  balance.PendingAmount.StringFixed(2),
		EligibleAmount: balance.EligibleAmount.StringFixed(2),
		ReservedAmount: balance.ReservedAmount.StringFixed(2),
		PaidAmount:     balance.PaidAmount.StringFixed(2),
		UpdatedAt:      time.Now().Unix(),
	}
	_ = cache.SetUserBalance(c.Request.Context(), snapshot)
	response.Success(c, snapshot)
}
