package public

import "github.com/paytrack-next/internal/provider"

// Handler 用户侧与网关回调接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
