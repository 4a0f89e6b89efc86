package service

import (
	"Tradelink/internal/model"
	"sync"
)

// ViewHub 按用户索引打开的实时视图，用于把 HTTP 上传的进度转发到该用户的连接
type ViewHub struct {
	mu    sync.RWMutex
	views map[string]map[*ConversationView]struct{}
}

func NewViewHub() *ViewHub {
	return &ViewHub{views: make(map[string]map[*ConversationView]struct{})}
}

func (h *ViewHub) Register(v *ConversationView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := v.Viewer().ID
	set, ok := h.views[userID]
	if !ok {
		set = make(map[*ConversationView]struct{})
		h.views[userID] = set
	}
	set[v] = struct{}{}
}

func (h *ViewHub) Unregister(v *ConversationView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := v.Viewer().ID
	set := h.views[userID]
	delete(set, v)
	if len(set) == 0 {
		delete(h.views, userID)
	}
}

// PublishUpload 推送给该用户的所有视图
func (h *ViewHub) PublishUpload(userID string, p model.PendingUpload) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.views[userID]
	for v := range set {
		v.PublishUpload(p)
	}
	return len(set)
}

// Count 打开的视图数
func (h *ViewHub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.views[userID])
}
