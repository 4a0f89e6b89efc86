package model

import "time"

// Kind 消息类型
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindVoice    Kind = "voice"
	KindDocument Kind = "document"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindAudio, KindVoice, KindDocument:
		return true
	}
	return false
}

// HasAttachment 非文本消息必须携带附件
func (k Kind) HasAttachment() bool {
	return k != KindText
}

// Attachment 消息附件，URL 一定是上传完成后的最终地址
type Attachment struct {
	URL             string  `json:"url"`
	FileName        string  `json:"fileName"`
	FileSize        int64   `json:"fileSize"`
	MimeType        string  `json:"mimeType"`
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// Message 会话消息
// LocalID / Pending / Failed / Error 仅用于乐观回显，不会落库
type Message struct {
	ID         string      `json:"id,omitempty"`
	LocalID    string      `json:"localId,omitempty"`
	ScopeID    string      `json:"scopeId"`
	ScopeKind  ScopeKind   `json:"scopeKind"`
	CustomerID string      `json:"customerId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	SenderRole Role        `json:"senderRole"`
	Body       string      `json:"body"`
	Kind       Kind        `json:"kind"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	Read       bool        `json:"read"`
	Pending    bool        `json:"pending,omitempty"`
	Failed     bool        `json:"failed,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// IsEcho 是否为尚未被存储确认的本地回显
func (m *Message) IsEcho() bool {
	return m.ID == "" && m.LocalID != ""
}

// IsInboundFor 对 viewer 而言是否为对方发来的消息
func (m *Message) IsInboundFor(viewer Role) bool {
	return m.SenderRole != viewer
}

// NewMessage 追加消息的入参，ID 与 CreatedAt 由存储端分配
type NewMessage struct {
	ScopeID    string
	ScopeKind  ScopeKind
	CustomerID string
	SenderID   string
	SenderName string
	SenderRole Role
	Body       string
	Kind       Kind
	Attachment *Attachment
}
