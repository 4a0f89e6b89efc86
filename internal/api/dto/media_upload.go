package dto

import "Tradelink/internal/model"

// MediaTempMetadata 附件台账：已上传但尚未被消息引用
type MediaTempMetadata struct {
	ObjectKey    string  `json:"object_key"`
	UploaderID   string  `json:"uploader_id"`
	MimeType     string  `json:"mime_type"`
	Size         int64   `json:"size"`
	ThumbnailKey string  `json:"thumbnail_key,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	CreatedAt    int64   `json:"created_at"`
}

// UploadResp 上传完成后返回给前端的附件
type UploadResp struct {
	LocalID    string            `json:"localId"`
	Kind       model.Kind        `json:"kind"`
	Attachment *model.Attachment `json:"attachment"`
}

// VoiceUploadReq 语音上传的附加表单字段
type VoiceUploadReq struct {
	Duration float64 `form:"duration" validate:"gte=0,lte=3600"`
}
