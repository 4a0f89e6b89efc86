package model

import "time"

// SupportDeskID 客户视角下所有会话的固定对端
const SupportDeskID = "support-desk"

// ThreadKey 会话线程标识
type ThreadKey struct {
	ScopeID        string `json:"scopeId"`
	CounterpartyID string `json:"counterpartyId"`
}

// Thread 由消息集合推导出的视图，不落库
type Thread struct {
	ScopeID                 string    `json:"scopeId"`
	ScopeKind               ScopeKind `json:"scopeKind"`
	CounterpartyID          string    `json:"counterpartyId"`
	CounterpartyDisplayName string    `json:"counterpartyDisplayName"`
	LastMessagePreview      string    `json:"lastMessagePreview"`
	LastMessageAt           time.Time `json:"lastMessageAt"`
	UnreadCount             int       `json:"unreadCount"`
	Messages                []Message `json:"messages,omitempty"`
}

func (t *Thread) Key() ThreadKey {
	return ThreadKey{ScopeID: t.ScopeID, CounterpartyID: t.CounterpartyID}
}
