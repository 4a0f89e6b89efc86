package dto

import "Tradelink/internal/model"

// AttachmentDTO 已上传完成的附件
type AttachmentDTO struct {
	URL             string  `json:"url"`
	FileName        string  `json:"file_name" validate:"required,max=255"`
	FileSize        int64   `json:"file_size" validate:"gte=0"`
	MimeType        string  `json:"mime_type" validate:"required"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
	Voice           bool    `json:"voice"`
}

// SendMessageReq 发送消息请求体
// 客户发送时 scope_id 可省略，默认进入自己的客服会话
type SendMessageReq struct {
	ScopeID     string          `json:"scope_id" validate:"max=64"`
	Body        string          `json:"body" validate:"max=4000"`
	Attachments []AttachmentDTO `json:"attachments" validate:"max=10,dive"`
}

// MarkReadReq 标记线程已读
type MarkReadReq struct {
	ScopeID        string `json:"scope_id" binding:"required"`
	CounterpartyID string `json:"counterparty_id"`
}

// ThreadQuery 线程列表查询
type ThreadQuery struct {
	Kind    string `form:"kind"`
	ScopeID string `form:"scopeId"`
}

// MessagesQuery 单个线程消息查询
type MessagesQuery struct {
	ScopeID        string `form:"scopeId" binding:"required"`
	CounterpartyID string `form:"counterpartyId"`
}

// CreateScopeReq 管理员登记询价/合作会话
type CreateScopeReq struct {
	ID            string `json:"id" binding:"required" validate:"max=64"`
	Kind          string `json:"kind" binding:"required" validate:"oneof=support rfq partnership"`
	CustomerID    string `json:"customer_id" binding:"required" validate:"max=64"`
	CustomerName  string `json:"customer_name" validate:"max=128"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	Title         string `json:"title" validate:"max=255"`
}

// ThreadListResp 线程列表
type ThreadListResp struct {
	Threads     []model.Thread `json:"threads"`
	UnreadTotal int            `json:"unreadTotal"`
}

// 实时会话视图帧类型
const (
	FrameState   = "state"
	FrameUpload  = "upload"
	FrameError   = "error"
	FrameSelect  = "select"
	FrameSend    = "send"
	FrameRetry   = "retry"
	FrameDiscard = "discard"
)

// ClientFrame 客户端发往实时视图的指令
type ClientFrame struct {
	Type           string          `json:"type"`
	LocalID        string          `json:"localId,omitempty"`
	ScopeID        string          `json:"scopeId,omitempty"`
	CounterpartyID string          `json:"counterpartyId,omitempty"`
	Body           string          `json:"body,omitempty"`
	Attachments    []AttachmentDTO `json:"attachments,omitempty"`
}

// ServerFrame 实时视图推送给客户端的帧
type ServerFrame struct {
	Type      string               `json:"type"`
	Threads   []model.Thread       `json:"threads,omitempty"`
	Active    *model.Thread        `json:"active,omitempty"`
	Unread    int                  `json:"unreadTotal,omitempty"`
	Upload    *model.PendingUpload `json:"upload,omitempty"`
	LocalID   string               `json:"localId,omitempty"`
	Error     string               `json:"error,omitempty"`
	Retryable bool                 `json:"retryable,omitempty"`
}
