package middleware

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/service"
	"slices"

	"github.com/gin-gonic/gin"
)

// CheckRoles 检查当前用户是否为指定角色之一
func CheckRoles(requiredRoles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := service.IdentityFrom(c.Request.Context())
		if who == nil {
			response.Fail(c, response.Unauthorized, "未登录")
			c.Abort()
			return
		}

		if !slices.Contains(requiredRoles, who.Role) {
			response.Fail(c, response.Forbidden, "权限不足：无权访问该资源")
			c.Abort()
			return
		}

		c.Next()
	}
}
