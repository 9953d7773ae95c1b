package public

import (
	"github.com/affilia-next/internal/provider"
)

// Handler 用户端接口处理器
type Handler struct {
	*provider.Container
}

// New 创建用户端处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
