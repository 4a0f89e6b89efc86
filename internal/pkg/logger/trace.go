package logger

import (
	"context"
	log "log/slog"
)

type ctxKey string

// TraceIDKey Context / gin.Keys 中的 trace_id
const TraceIDKey = "trace_id"

// UserIDKey 请求用户 ID，由鉴权中间件写入
const UserIDKey ctxKey = "log_user_id"

// ContextHandler 从 ctx 中提取 trace_id 与 user_id
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if ctx != nil {
		if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
			r.AddAttrs(log.String(TraceIDKey, traceID))
		}
		if uid, ok := ctx.Value(UserIDKey).(string); ok && uid != "" {
			r.AddAttrs(log.String("user_id", uid))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []log.Attr) log.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) log.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}

// WithTraceID 为后台任务生成的 ctx 附加 trace_id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithUserID 在 ctx 中记录当前用户，便于日志关联
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
