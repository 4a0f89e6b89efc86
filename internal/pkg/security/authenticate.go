package security

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/consts"
	"Tradelink/internal/pkg/redis"
	"context"
	"errors"
	"strings"
	"time"
)

var ErrTokenInvalid = errors.New("Token 无效或已过期")

// Authenticator 由 Token 解析出当前用户
type Authenticator func(ctx context.Context, token string) (*model.Identity, error)

// Authenticate 校验签名、过期与注销状态
// Redis 不可用时返回非 ErrTokenInvalid 的错误
func Authenticate(ctx context.Context, token string) (*model.Identity, error) {
	token = strings.TrimSpace(token)
	signature, err := ExtractSignature(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	value, err := redis.GetValue(ctx, consts.TokenRevokedKey+signature)
	if err != nil {
		return nil, err
	}
	if value != "" {
		return nil, ErrTokenInvalid
	}

	claims, err := ValidateToken(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims.Identity(), nil
}

// Revoke 注销 Token，保留到其过期时间
func Revoke(ctx context.Context, token string) error {
	claims, err := ValidateToken(token)
	if err != nil {
		return ErrTokenInvalid
	}
	signature, _ := ExtractSignature(token)
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return redis.SetWithExpiration(ctx, consts.TokenRevokedKey+signature, "1", ttl)
}
