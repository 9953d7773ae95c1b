package service

import (
	"strings"
	"sync"
	"time"

	"github.com/affilia-next/internal/config"

	"github.com/mojocn/base64Captcha"
)

// CaptchaVerifyPayload 验证码校验请求载荷
type CaptchaVerifyPayload struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

// CaptchaImageChallenge 图片验证码挑战
type CaptchaImageChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaService 图片验证码服务。
// 按场景开关决定登录/注册是否需要验证码，
// 外部调用 Verify(scene, payload) 与 GenerateImageChallenge。
type CaptchaService struct {
	cfg config.CaptchaConfig

	mu         sync.Mutex
	imageStore base64Captcha.Store
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	return &CaptchaService{cfg: normalizeCaptchaConfig(cfg)}
}

// Enabled 判断验证码总开关
func (s *CaptchaService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// IsSceneEnabled 判断指定场景是否需要验证码
func (s *CaptchaService) IsSceneEnabled(scene string) bool {
	if !s.Enabled() {
		return false
	}
	target := strings.ToLower(strings.TrimSpace(scene))
	for _, item := range s.cfg.Scenes {
		if strings.ToLower(strings.TrimSpace(item)) == target {
			return true
		}
	}
	return false
}

// GenerateImageChallenge 生成图片验证码
func (s *CaptchaService) GenerateImageChallenge() (*CaptchaImageChallenge, error) {
	if !s.Enabled() {
		return nil, ErrCaptchaConfigInvalid
	}

	driver := base64Captcha.NewDriverString(
		s.cfg.ImageHeight,
		s.cfg.ImageWidth,
		s.cfg.ImageNoiseCount,
		s.cfg.ImageShowLine,
		s.cfg.ImageLength,
		"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		nil,
		base64Captcha.DefaultEmbeddedFonts,
		nil,
	)
	captcha := base64Captcha.NewCaptcha(driver, s.ensureImageStore())
	id, b64s, _, err := captcha.Generate()
	if err != nil {
		return nil, err
	}

	return &CaptchaImageChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 按场景校验验证码
func (s *CaptchaService) Verify(scene string, payload CaptchaVerifyPayload) error {
	if !s.IsSceneEnabled(scene) {
		return nil
	}

	captchaID := strings.TrimSpace(payload.CaptchaID)
	captchaCode := strings.TrimSpace(payload.CaptchaCode)
	if captchaID == "" || captchaCode == "" {
		return ErrCaptchaRequired
	}
	if !s.ensureImageStore().Verify(captchaID, captchaCode, true) {
		return ErrCaptchaInvalid
	}
	return nil
}

func (s *CaptchaService) ensureImageStore() base64Captcha.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.imageStore == nil {
		s.imageStore = base64Captcha.NewMemoryStore(s.cfg.ImageMaxStore, time.Duration(s.cfg.ImageExpireSeconds)*time.Second)
	}
	return s.imageStore
}

func normalizeCaptchaConfig(cfg config.CaptchaConfig) config.CaptchaConfig {
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = 240
	}
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = 80
	}
	if cfg.ImageLength < 4 || cfg.ImageLength > 8 {
		cfg.ImageLength = 5
	}
	if cfg.ImageNoiseCount < 0 {
		cfg.ImageNoiseCount = 0
	}
	if cfg.ImageShowLine < 0 {
		cfg.ImageShowLine = 0
	}
	if cfg.ImageMaxStore <= 0 {
		cfg.ImageMaxStore = 10240
	}
	if cfg.ImageExpireSeconds <= 0 {
		cfg.ImageExpireSeconds = 300
	}
	return cfg
}
