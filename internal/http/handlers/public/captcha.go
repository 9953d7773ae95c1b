package public

import (
	"github.com/affilia-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetCaptchaConfig 查询验证码启用情况
func (h *Handler) GetCaptchaConfig(c *gin.Context) {
	cfg := h.Config.Captcha
	response.Success(c, gin.H{
		"enabled": cfg.Enabled,
		"scenes":  cfg.Scenes,
	})
}

// GenerateCaptcha 生成图形验证码
func (h *Handler) GenerateCaptcha(c *gin.Context) {
	if !h.CaptchaService.Enabled() {
		respondError(c, response.CodeBadRequest, "验证码未启用", nil)
		return
	}
	challenge, err := h.CaptchaService.GenerateImageChallenge()
	if err != nil {
		respondError(c, response.CodeInternal, "验证码生成失败", err)
		return
	}
	response.Success(c, challenge)
}
