package public

import (
	"errors"
	"strconv"
	"strings"

	"github.com/affilia-next/internal/cache"
	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WithdrawalApplyRequest 提现申请请求。
// amount 与 commission_ids 二选一：按金额自动挑选，或显式指定佣金明细。
type WithdrawalApplyRequest struct {
	Amount        string `json:"amount"`
	CommissionIDs []uint `json:"commission_ids"`
	Method        string `json:"method"`
	BankAccountID uint   `json:"bank_account_id"`
	Note          string `json:"note"`
}

// ApplyWithdrawal 发起提现申请（创建即占用佣金）
func (h *Handler) ApplyWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req WithdrawalApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	amount := decimal.Zero
	if strings.TrimSpace(req.Amount) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			respondError(c, response.CodeBadRequest, "提现金额不合法", nil)
			return
		}
		amount = parsed
	}

	withdrawal, err := h.WithdrawalService.Create(userID, service.WithdrawalCreateInput{
		Amount:        amount,
		CommissionIDs: req.CommissionIDs,
		Method:        req.Method,
		BankAccountID: req.BankAccountID,
		Note:          req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWithdrawalAmountInvalid):
			respondError(c, response.CodeBadRequest, "提现金额不合法", nil)
		case errors.Is(err, service.ErrWithdrawalInsufficient):
			respondError(c, response.CodeBadRequest, "可提现余额不足", nil)
		case errors.Is(err, service.ErrWithdrawalMethodInvalid):
			respondError(c, response.CodeBadRequest, "提现方式不可用", nil)
		case errors.Is(err, service.ErrBankAccountInvalid):
			respondError(c, response.CodeBadRequest, "收款账户不可用", nil)
		case errors.Is(err, service.ErrReservationConflict):
			respondError(c, response.CodeConflict, "佣金已被其它提现单占用", nil)
		case errors.Is(err, service.ErrCommissionStateInvalid):
			respondError(c, response.CodeBadRequest, "存在不可提现的佣金", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "佣金不存在", nil)
		default:
			respondError(c, response.CodeInternal, "提现申请失败", err)
		}
		return
	}
	_ = cache.DelUserBalance(c.Request.Context(), userID)
	response.Success(c, withdrawal)
}

// CancelWithdrawal 撤销待审核的提现单（释放占用佣金）
func (h *Handler) CancelWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	withdrawal, err := h.WithdrawalService.Cancel(userID, uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "仅待审核的提现单可撤销", nil)
		default:
			respondError(c, response.CodeInternal, "撤销失败", err)
		}
		return
	}
	_ = cache.DelUserBalance(c.Request.Context(), userID)
	response.Success(c, withdrawal)
}

// WithdrawalCommissionRequest 明细调整请求
type WithdrawalCommissionRequest struct {
	CommissionID uint `json:"commission_id" binding:"required"`
}

// AttachWithdrawalCommission 向待审核提现单追加佣金明细
func (h *Handler) AttachWithdrawalCommission(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	var req WithdrawalCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	withdrawal, err := h.WithdrawalService.AttachCommission(userID, uint(id), req.CommissionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单或佣金不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "仅待审核的提现单可调整明细", nil)
		case errors.Is(err, service.ErrReservationConflict):
			respondError(c, response.CodeConflict, "佣金已被其它提现单占用", nil)
		case errors.Is(err, service.ErrCommissionStateInvalid):
			respondError(c, response.CodeBadRequest, "佣金状态不可提现", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	_ = cache.DelUserBalance(c.Request.Context(), userID)
	response.Success(c, withdrawal)
}

// DetachWithdrawalCommission 从待审核提现单移除佣金明细
func (h *Handler) DetachWithdrawalCommission(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	commissionID, err := strconv.ParseUint(c.Param("commission_id"), 10, 64)
	if err != nil || commissionID == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	withdrawal, err := h.WithdrawalService.DetachCommission(userID, uint(id), uint(commissionID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单或佣金明细不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "仅待审核的提现单可调整明细", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	_ = cache.DelUserBalance(c.Request.Context(), userID)
	response.Success(c, withdrawal)
}

// ListMyWithdrawals 查询我的提现记录
func (h *Handler) ListMyWithdrawals(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	rows, total, err := h.WithdrawalService.ListUserWithdrawals(userID, page, pageSize, strings.TrimSpace(c.Query("status")))
	if err != nil {
		respondError(c, response.CodeInternal, "提现记录查询失败", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetMyWithdrawal 查询我的提现单详情
func (h *Handler) GetMyWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	withdrawal, err := h.WithdrawalService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "提现单查询失败", err)
		return
	}
	if withdrawal.UserID != userID {
		respondError(c, response.CodeNotFound, "提现单不存在", nil)
		return
	}
	response.Success(c, withdrawal)
}
