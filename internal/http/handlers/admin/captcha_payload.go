package admin

import "github.com/affilia-next/internal/service"

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
