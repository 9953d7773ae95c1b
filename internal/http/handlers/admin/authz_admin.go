package admin

import (
	"strconv"

	"github.com/affilia-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ListAuthzRoles 角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "角色查询失败", err)
		return
	}
	response.Success(c, roles)
}

// AdminRolesRequest 管理员角色设置请求
type AdminRolesRequest struct {
	Roles []string `json:"roles" binding:"required"`
}

// GetAdminRoles 查询管理员角色
func (h *Handler) GetAdminRoles(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "角色查询失败", err)
		return
	}
	response.Success(c, roles)
}

// SetAdminRoles 覆盖设置管理员角色
func (h *Handler) SetAdminRoles(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数不合法", nil)
		return
	}
	var req AdminRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}
	if err := h.AuthzService.SetAdminRoles(uint(id), req.Roles); err != nil {
		respondError(c, response.CodeInternal, "角色保存失败", err)
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "角色查询失败", err)
		return
	}
	response.Success(c, roles)
}
