package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const ChatMessageCollection = "chat_message"

// ChatMessage MongoDB 会话消息文档
// 字段均为宽松类型，是否合法由仓储层在转换时判定
type ChatMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ScopeID    string             `bson:"scope_id"`
	ScopeKind  string             `bson:"scope_kind"`
	CustomerID string             `bson:"customer_id"`
	SenderID   string             `bson:"sender_id"`
	SenderName string             `bson:"sender_name"`
	SenderRole string             `bson:"sender_role"`
	Body       string             `bson:"body"`
	Kind       string             `bson:"kind"`
	Attachment *Attachment        `bson:"attachment,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
	Read       bool               `bson:"read"`
	ReadAt     *time.Time         `bson:"read_at,omitempty"`
}

// Attachment 附件
type Attachment struct {
	URL             string  `bson:"url"`
	FileName        string  `bson:"file_name"`
	FileSize        int64   `bson:"file_size"`
	MimeType        string  `bson:"mime_type"`
	ThumbnailURL    string  `bson:"thumbnail_url,omitempty"`
	DurationSeconds float64 `bson:"duration_seconds,omitempty"`
}

// ChatMessageFilter 快照查询条件，空字段不参与过滤
type ChatMessageFilter struct {
	ScopeID    string
	ScopeKind  string
	CustomerID string
}

// ReadFilter 已读标记的限定条件
type ReadFilter struct {
	IDs []primitive.ObjectID
	// 只能标记对方发送的消息
	NotSenderRole string
	// 客户只能标记自己范围内的消息
	CustomerID string
}
