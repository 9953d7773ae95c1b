package public

import (
	"errors"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/http/response"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CaptchaPayloadRequest 验证码请求载荷
type CaptchaPayloadRequest struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

func (r CaptchaPayloadRequest) toServicePayload() service.CaptchaVerifyPayload {
	return service.CaptchaVerifyPayload{
		CaptchaID:   r.CaptchaID,
		CaptchaCode: r.CaptchaCode,
	}
}

// RegisterRequest 用户注册请求
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
	CaptchaPayloadRequest
}

// LoginRequest 用户登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	CaptchaPayloadRequest
}

// AuthResponse 认证结果响应
type AuthResponse struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt string       `json:"expires_at"`
}

func buildAuthResponse(user *models.User, token string, expiresAt time.Time) AuthResponse {
	return AuthResponse{
		Token:     token,
		User:      user,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Register 用户注册（注册即分配推广码）
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	if err := h.CaptchaService.Verify(constants.CaptchaSceneUserRegister, req.toServicePayload()); err != nil {
		switch {
		case errors.Is(err, service.ErrCaptchaRequired):
			respondError(c, response.CodeBadRequest, "请完成验证码校验", nil)
		default:
			respondError(c, response.CodeBadRequest, "验证码错误", nil)
		}
		return
	}

	user, token, expiresAt, err := h.UserAuthService.Register(req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "邮箱格式不合法", nil)
		case errors.Is(err, service.ErrEmailExists):
			respondError(c, response.CodeBadRequest, "邮箱已被注册", nil)
		case errors.Is(err, service.ErrWeakPassword):
			respondError(c, response.CodeBadRequest, err.Error(), nil)
		default:
			respondError(c, response.CodeInternal, "注册失败", err)
		}
		return
	}
	response.Success(c, buildAuthResponse(user, token, expiresAt))
}

// Login 用户登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	if err := h.CaptchaService.Verify(constants.CaptchaSceneUserLogin, req.toServicePayload()); err != nil {
		switch {
		case errors.Is(err, service.ErrCaptchaRequired):
			respondError(c, response.CodeBadRequest, "请完成验证码校验", nil)
		default:
			respondError(c, response.CodeBadRequest, "验证码错误", nil)
		}
		return
	}

	user, token, expiresAt, err := h.UserAuthService.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, response.CodeUnauthorized, "邮箱或密码错误", nil)
		case errors.Is(err, service.ErrUserDisabled):
			respondError(c, response.CodeForbidden, "账户已被禁用", nil)
		default:
			respondError(c, response.CodeInternal, "登录失败", err)
		}
		return
	}
	response.Success(c, buildAuthResponse(user, token, expiresAt))
}

// UpdatePasswordRequest 修改密码请求
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdatePassword 修改密码（修改后旧 Token 全部失效）
func (h *Handler) UpdatePassword(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	if err := h.UserAuthService.ChangePassword(userID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPassword):
			respondError(c, response.CodeBadRequest, "原密码错误", nil)
		case errors.Is(err, service.ErrWeakPassword):
			respondError(c, response.CodeBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "用户不存在", nil)
		default:
			respondError(c, response.CodeInternal, "密码修改失败", err)
		}
		return
	}
	response.SuccessWithMsg(c, "密码修改成功，请重新登录", nil)
}

// ProfileRequest 资料更新请求
type ProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// UpdateProfile 更新个人资料
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	user, err := h.UserAuthService.UpdateProfile(userID, req.DisplayName)
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

// Me 查询当前登录用户
func (h *Handler) Me(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	user, err := h.UserAuthService.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "用户不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "用户查询失败", err)
		return
	}
	response.Success(c, user)
}
