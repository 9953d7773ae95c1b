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

// ListOrders 管理端订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	userID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("user_id")), 10, 64)
	affiliateUserID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("affiliate_user_id")), 10, 64)

	rows, total, err := h.OrderService.List(repository.OrderListFilter{
		Page:            page,
		PageSize:        pageSize,
		UserID:          uint(userID),
		AffiliateUserID: uint(affiliateUserID),
		Status:          strings.TrimSpace(c.Query("status")),
		OrderNo:         strings.TrimSpace(c.Query("order_no")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "订单列表查询失败", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetOrder 管理端订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	row, err := h.OrderService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "订单不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "订单查询失败", err)
		return
	}
	response.Success(c, row)
}

// OrderIngestItemRequest 订单项接入请求
type OrderIngestItemRequest struct {
	ProductID      uint   `json:"product_id" binding:"required"`
	Title          string `json:"title"`
	UnitPrice      string `json:"unit_price" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required"`
	TotalPrice     string `json:"total_price" binding:"required"`
	DiscountAmount string `json:"discount_amount"`
}

// OrderIngestRequest 订单接入请求（来自商城子系统的已支付订单快照）
type OrderIngestRequest struct {
	OrderNo       string                   `json:"order_no" binding:"required"`
	UserID        uint                     `json:"user_id" binding:"required"`
	AffiliateCode string                   `json:"affiliate_code"`
	Currency      string                   `json:"currency"`
	TotalAmount   string                   `json:"total_amount" binding:"required"`
	Items         []OrderIngestItemRequest `json:"items" binding:"required"`
}

// IngestOrder 接入订单快照（按订单号幂等）
func (h *Handler) IngestOrder(c *gin.Context) {
	var req OrderIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	totalAmount, err := decimal.NewFromString(strings.TrimSpace(req.TotalAmount))
	if err != nil {
		respondError(c, response.CodeBadRequest, "订单金额不合法", nil)
		return
	}

	input := service.OrderIngestInput{
		OrderNo:       req.OrderNo,
		UserID:        req.UserID,
		AffiliateCode: req.AffiliateCode,
		Currency:      req.Currency,
		TotalAmount:   totalAmount,
	}
	for _, item := range req.Items {
		unitPrice, err := decimal.NewFromString(strings.TrimSpace(item.UnitPrice))
		if err != nil {
			respondError(c, response.CodeBadRequest, "订单项金额不合法", nil)
			return
		}
		totalPrice, err := decimal.NewFromString(strings.TrimSpace(item.TotalPrice))
		if err != nil {
			respondError(c, response.CodeBadRequest, "订单项金额不合法", nil)
			return
		}
		discount := decimal.Zero
		if strings.TrimSpace(item.DiscountAmount) != "" {
			discount, err = decimal.NewFromString(strings.TrimSpace(item.DiscountAmount))
			if err != nil {
				respondError(c, response.CodeBadRequest, "订单项金额不合法", nil)
				return
			}
		}
		input.Items = append(input.Items, service.OrderIngestItem{
			ProductID:      item.ProductID,
			Title:          item.Title,
			UnitPrice:      unitPrice,
			Quantity:       item.Quantity,
			TotalPrice:     totalPrice,
			DiscountAmount: discount,
		})
	}

	order, err := h.OrderService.Ingest(input)
	if err != nil {
		if errors.Is(err, service.ErrOrderStateInvalid) {
			respondError(c, response.CodeBadRequest, "订单接入参数不合法", nil)
			return
		}
		respondError(c, response.CodeInternal, "订单接入失败", err)
		return
	}
	response.Success(c, order)
}

// OrderEventRequest 订单生命周期事件请求
type OrderEventRequest struct {
	RefundAmount string `json:"refund_amount"`
	Reason       string `json:"reason"`
}

// MarkOrderDelivered 标记订单已交付并触发计佣
func (h *Handler) MarkOrderDelivered(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	order, err := h.OrderService.HandleDelivered(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "订单不存在", nil)
		case errors.Is(err, service.ErrOrderStateInvalid):
			respondError(c, response.CodeBadRequest, "订单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, order)
}

// MarkOrderReturned 标记订单退货并触发佣金逆向
func (h *Handler) MarkOrderReturned(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req OrderEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}
	refund := decimal.Zero
	if strings.TrimSpace(req.RefundAmount) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(req.RefundAmount))
		if err != nil || parsed.IsNegative() {
			respondError(c, response.CodeBadRequest, "退款金额不合法", nil)
			return
		}
		refund = parsed
	}

	order, err := h.OrderService.HandleReturned(uint(id), refund, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "订单不存在", nil)
		case errors.Is(err, service.ErrOrderStateInvalid):
			respondError(c, response.CodeBadRequest, "订单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, order)
}

// MarkOrderCanceled 标记订单取消并触发佣金逆向
func (h *Handler) MarkOrderCanceled(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}

	var req OrderEventRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.OrderService.HandleCanceled(uint(id), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "订单不存在", nil)
		case errors.Is(err, service.ErrOrderStateInvalid):
			respondError(c, response.CodeBadRequest, "订单状态不允许该操作", nil)
		default:
			respondError(c, response.CodeInternal, "保存失败", err)
		}
		return
	}
	response.Success(c, order)
}
