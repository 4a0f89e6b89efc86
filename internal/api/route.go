package api

import (
	"Tradelink/internal/api/middleware"
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const wsPath = "/api/chat/ws"

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware(wsPath, "/metrics", "/api/ping"))
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		chatGroup := apiGroup.Group("/chat")
		{
			// 浏览器 WebSocket 无法携带 Header，在 handler 内鉴权
			chatGroup.GET("/ws", group.WSHandler.Connect)

			authGroup := chatGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware(group.Authenticate))
			{
				authGroup.GET("/threads", group.ChatHandler.ListThreads)
				authGroup.GET("/messages", group.ChatHandler.GetMessages)
				authGroup.POST("/read", group.ChatHandler.MarkRead)
			}

			limitedGroup := authGroup.Group("")
			limitedGroup.Use(middleware.RateLimitMiddleware("chat_write", group.WriteLimiter))
			{
				limitedGroup.POST("/send", group.ChatHandler.Send)
				limitedGroup.POST("/upload", group.MediaHandler.Upload)
				limitedGroup.POST("/voice", group.MediaHandler.UploadVoice)
			}

			// 需要登录 & 管理员
			adminGroup := authGroup.Group("")
			adminGroup.Use(middleware.CheckRoles(model.RoleAdmin))
			{
				adminGroup.POST("/scopes", group.ChatHandler.CreateScope)
			}
		}
	}

	return r
}
