package service

import (
	"Tradelink/internal/model"
	"context"
)

type identityCtxKey struct{}

// WithIdentity 将当前用户写入 ctx，由鉴权中间件调用
func WithIdentity(ctx context.Context, who *model.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, who)
}

// IdentityFrom 读取当前用户，未登录返回 nil
func IdentityFrom(ctx context.Context) *model.Identity {
	if ctx == nil {
		return nil
	}
	who, _ := ctx.Value(identityCtxKey{}).(*model.Identity)
	return who
}

// IdentityAccessor 当前用户访问器
type IdentityAccessor interface {
	Current(ctx context.Context) *model.Identity
}

// ContextIdentity 从请求 ctx 中读取当前用户
type ContextIdentity struct{}

func (ContextIdentity) Current(ctx context.Context) *model.Identity {
	return IdentityFrom(ctx)
}
