package model

// UploadStatus 附件上传状态
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadComplete  UploadStatus = "complete"
	UploadError     UploadStatus = "error"
)

func (s UploadStatus) Terminal() bool {
	return s == UploadComplete || s == UploadError
}

// PendingUpload 上传进度快照，每次进度变化都会产生新的值
type PendingUpload struct {
	LocalID         string       `json:"localId"`
	FileName        string       `json:"fileName"`
	FileSize        int64        `json:"fileSize"`
	MimeType        string       `json:"mimeType"`
	Kind            Kind         `json:"kind"`
	ProgressPercent int          `json:"progressPercent"`
	Status          UploadStatus `json:"status"`
	Result          *Attachment  `json:"result,omitempty"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
}

// WithProgress 返回进度更新后的新快照
func (p PendingUpload) WithProgress(percent int) PendingUpload {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p.Status = UploadUploading
	p.ProgressPercent = percent
	return p
}

// Completed 返回成功终态快照
func (p PendingUpload) Completed(att Attachment) PendingUpload {
	p.Status = UploadComplete
	p.ProgressPercent = 100
	p.Result = &att
	p.ErrorMessage = ""
	return p
}

// Failed 返回失败终态快照
func (p PendingUpload) Failed(err error) PendingUpload {
	p.Status = UploadError
	p.Result = nil
	if err != nil {
		p.ErrorMessage = err.Error()
	}
	return p
}
