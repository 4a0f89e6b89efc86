package middleware

import (
	"Tradelink/internal/pkg/consts"
	"Tradelink/internal/pkg/logger"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/pkg/security"
	"Tradelink/internal/service"
	"errors"
	log "log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware(authenticate security.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		who, err := authenticate(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if errors.Is(err, security.ErrTokenInvalid) {
				response.Fail(c, response.Unauthorized, err.Error())
			} else {
				log.ErrorContext(c.Request.Context(), "鉴权失败", "err", err)
				response.Fail(c, response.InternalServerError, "未知错误")
			}
			c.Abort()
			return
		}

		c.Set(consts.CtxIdentityKey, who)
		c.Set(consts.CtxUserIDKey, who.ID)
		c.Set(consts.CtxRolesKey, []string{string(who.Role)})

		ctx := service.WithIdentity(c.Request.Context(), who)
		ctx = logger.WithUserID(ctx, who.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
