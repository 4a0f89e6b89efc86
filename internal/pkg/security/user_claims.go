package security

import (
	"Tradelink/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims Token 中携带的当前用户信息
type UserClaims struct {
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	Email  string     `json:"email,omitempty"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity 转换为会话使用的用户身份
func (c *UserClaims) Identity() *model.Identity {
	return &model.Identity{
		ID:          c.UserID,
		DisplayName: c.Name,
		Email:       c.Email,
		Role:        c.Role,
	}
}
