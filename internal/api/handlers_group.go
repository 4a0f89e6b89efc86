package api

import (
	"Tradelink/internal/api/handler"
	"Tradelink/internal/pkg/ratelimit"
	"Tradelink/internal/pkg/security"
)

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	ChatHandler  *handler.ChatHandler
	MediaHandler *handler.MediaHandler
	WSHandler    *handler.WsHandler
	// Authenticate 鉴权中间件使用的 Token 解析
	Authenticate security.Authenticator
	// WriteLimiter 发送与上传限流，WS 发送共用同一个池
	WriteLimiter *ratelimit.Pool
}
