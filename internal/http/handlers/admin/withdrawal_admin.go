package admin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/repository"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListWithdrawals 管理端提现单列表
func (h *Handler) ListWithdrawals(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	userID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("user_id")), 10, 64)

	rows, total, err := h.WithdrawalService.List(repository.WithdrawalListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      uint(userID),
		Status:      strings.TrimSpace(c.Query("status")),
		ReferenceNo: strings.TrimSpace(c.Query("reference_no")),
		Keyword:     strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "提现单列表查询失败", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetWithdrawal 管理端提现单详情
func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	row, err := h.WithdrawalService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "提现单查询失败", err)
		return
	}
	response.Success(c, row)
}

// WithdrawalReviewRequest 提现审核请求
type WithdrawalReviewRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// ApproveWithdrawal 审核通过提现单（锁定挂载佣金）
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req WithdrawalReviewRequest
	_ = c.ShouldBindJSON(&req)

	row, err := h.WithdrawalService.Approve(adminID, uint(id), req.Note)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "提现单状态不允许该操作", nil)
		case errors.Is(err, service.ErrReservationConflict):
			respondError(c, response.CodeConflict, "佣金已被其它提现单占用", nil)
		case errors.Is(err, service.ErrCommissionStateInvalid):
			respondError(c, response.CodeBadRequest, "存在状态异常的挂载佣金", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}

// RejectWithdrawal 驳回提现单（释放挂载佣金）
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req WithdrawalReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	row, err := h.WithdrawalService.Reject(adminID, uint(id), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
		case errors.Is(err, service.ErrRejectReasonRequired):
			respondError(c, response.CodeBadRequest, "驳回操作必须填写原因", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "提现单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}

// WithdrawalPaymentRequest 打款阶段请求
type WithdrawalPaymentRequest struct {
	PaymentRef   string `json:"payment_ref"`
	EvidencePath string `json:"evidence_path"`
	Note         string `json:"note"`
}

// MarkWithdrawalInPayment 标记提现单打款中
func (h *Handler) MarkWithdrawalInPayment(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req WithdrawalPaymentRequest
	_ = c.ShouldBindJSON(&req)

	row, err := h.WithdrawalService.MarkInPayment(adminID, uint(id), req.PaymentRef)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "提现单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}

// MarkWithdrawalPaid 标记提现单打款完成
func (h *Handler) MarkWithdrawalPaid(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req WithdrawalPaymentRequest
	_ = c.ShouldBindJSON(&req)

	row, err := h.WithdrawalService.MarkAsPaid(adminID, uint(id), service.WithdrawalPaidInput{
		PaymentRef:   req.PaymentRef,
		EvidencePath: req.EvidencePath,
		Note:         req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "提现单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, row)
}

// UploadWithdrawalEvidence 上传打款凭证文件
func (h *Handler) UploadWithdrawalEvidence(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, response.CodeBadRequest, "凭证文件缺失", nil)
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !h.isEvidenceExtensionAllowed(ext) {
		respondError(c, response.CodeBadRequest, "凭证文件类型不支持", nil)
		return
	}

	dir := strings.TrimSpace(h.Config.Payout.EvidenceDir)
	if dir == "" {
		dir = "./uploads/evidence"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		respondError(c, response.CodeInternal, "凭证保存失败", err)
		return
	}
	filename := fmt.Sprintf("%s_%s%s", time.Now().Format("20060102"), uuid.NewString(), ext)
	dest := filepath.Join(dir, filename)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		respondError(c, response.CodeInternal, "凭证保存失败", err)
		return
	}

	row, err := h.WithdrawalService.SetEvidence(adminID, uint(id), dest)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "提现单不存在", nil)
		case errors.Is(err, service.ErrWithdrawalStateInvalid):
			respondError(c, response.CodeBadRequest, "提现单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, gin.H{
		"withdrawal":    row,
		"evidence_path": dest,
	})
}

func (h *Handler) isEvidenceExtensionAllowed(ext string) bool {
	allowed := h.Config.Payout.EvidenceAllowedExtensions
	if len(allowed) == 0 {
		allowed = []string{".jpg", ".jpeg", ".png", ".pdf"}
	}
	for _, item := range allowed {
		if strings.EqualFold(strings.TrimSpace(item), ext) {
			return true
		}
	}
	return false
}
