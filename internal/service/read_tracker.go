package service

import (
	"Tradelink/internal/model"
	"context"
	"errors"
	log "log/slog"
	"sync"
)

// ReadMarker 已读标记的存储能力
type ReadMarker interface {
	MarkRead(ctx context.Context, reader *model.Identity, ids ...string) (int64, error)
}

// ReadTracker 选中线程时把对方发来的未读消息标记为已读
// 已提交过的 ID 会被记住，重复选中同一线程不会重复写入
type ReadTracker struct {
	store ReadMarker

	mu         sync.Mutex
	dispatched map[string]struct{}
}

func NewReadTracker(store ReadMarker) *ReadTracker {
	return &ReadTracker{
		store:      store,
		dispatched: make(map[string]struct{}),
	}
}

// UnreadInbound 线程中需要标记的消息 ID
func UnreadInbound(thread *model.Thread, viewer model.Role) []string {
	if thread == nil {
		return nil
	}
	var ids []string
	for i := range thread.Messages {
		m := &thread.Messages[i]
		if m.ID != "" && !m.Read && m.IsInboundFor(viewer) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// MarkThreadRead 合并为一次 MarkRead 调用，错误只记录日志
// 返回本次提交的消息数
func (s *ReadTracker) MarkThreadRead(ctx context.Context, reader *model.Identity, thread *model.Thread) int {
	if reader == nil {
		return 0
	}

	s.mu.Lock()
	var ids []string
	for _, id := range UnreadInbound(thread, reader.Role) {
		if _, done := s.dispatched[id]; done {
			continue
		}
		s.dispatched[id] = struct{}{}
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}

	_, err := s.store.MarkRead(ctx, reader, ids...)
	switch {
	case err == nil:
	case errors.Is(err, ErrPermissionDenied):
		log.WarnContext(ctx, "mark read denied", "reader", reader.ID, "scope_id", thread.ScopeID, "count", len(ids))
	default:
		// 暂时性失败，下次选中时重试
		s.forget(ids)
		log.ErrorContext(ctx, "mark read failed", "reader", reader.ID, "scope_id", thread.ScopeID, "count", len(ids), "err", err)
	}
	return len(ids)
}

func (s *ReadTracker) forget(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.dispatched, id)
	}
}
