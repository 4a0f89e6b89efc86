package service

import (
	"Tradelink/internal/api/dto"
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/consts"
	"Tradelink/internal/pkg/metrics"
	"Tradelink/internal/pkg/util"
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ObjectStorage 对象存储能力
type ObjectStorage interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string, progress io.Reader) (string, error)
	Remove(ctx context.Context, objectName string) error
	URL(objectName string) string
}

// UploadLimits 上传白名单
type UploadLimits struct {
	MaxSizeBytes        int64
	AllowedMimePrefixes []string
	ThumbnailSize       int
	MaxConcurrent       int
}

// File 待上传的文件，Reader 由流水线独占直到终态
type File struct {
	LocalID         string
	Name            string
	Size            int64
	MimeType        string
	Reader          io.ReadSeeker
	DurationSeconds float64
	Voice           bool
	UploaderID      string
}

// UploadResult UploadAll 的单个结果
type UploadResult struct {
	LocalID    string
	Attachment *model.Attachment
	Err        error
}

type AttachmentPipeline struct {
	storage ObjectStorage
	ledger  Ledger
	limits  UploadLimits
	now     func() time.Time
}

// Ledger 附件台账
type Ledger interface {
	Track(ctx context.Context, url string, meta dto.MediaTempMetadata) error
	Release(ctx context.Context, urls ...string) error
}

func NewAttachmentPipeline(storage ObjectStorage, ledger Ledger, limits UploadLimits) *AttachmentPipeline {
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = 4
	}
	return &AttachmentPipeline{
		storage: storage,
		ledger:  ledger,
		limits:  limits,
		now:     time.Now,
	}
}

// ClassifyKind image/* video/* audio/* 之外一律视为文档
func ClassifyKind(mimeType string) model.Kind {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mimeType, consts.MimePrefixImage):
		return model.KindImage
	case strings.HasPrefix(mimeType, consts.MimePrefixVideo):
		return model.KindVideo
	case strings.HasPrefix(mimeType, consts.MimePrefixAudio):
		return model.KindAudio
	}
	return model.KindDocument
}

var voiceExtensions = map[string]string{
	"audio/webm": "webm",
	"audio/ogg":  "ogg",
	"audio/mpeg": "mp3",
	"audio/mp4":  "m4a",
	"audio/aac":  "aac",
	"audio/wav":  "wav",
	"audio/wave": "wav",
}

// NewVoiceFile 录音打包为文件：voice-<unix毫秒>.<ext>，并携带时长
func NewVoiceFile(reader io.ReadSeeker, size int64, mimeType string, duration float64, now time.Time) File {
	ext, ok := voiceExtensions[strings.ToLower(mimeType)]
	if !ok {
		ext = "webm"
	}
	if duration < 0 {
		duration = 0
	}
	return File{
		Name:            fmt.Sprintf("voice-%d.%s", now.UnixMilli(), ext),
		Size:            size,
		MimeType:        mimeType,
		Reader:          reader,
		DurationSeconds: duration,
		Voice:           true,
	}
}

// Validate 本地校验，不发生任何网络调用
func (s *AttachmentPipeline) Validate(file File) (model.PendingUpload, error) {
	if file.Size <= 0 || file.Reader == nil {
		return model.PendingUpload{}, ErrParamInvalid
	}
	if s.limits.MaxSizeBytes > 0 && file.Size > s.limits.MaxSizeBytes {
		return model.PendingUpload{}, errors.WithMessagef(ErrFileTooLarge, "上限 %s，当前 %s",
			humanize.Bytes(uint64(s.limits.MaxSizeBytes)), humanize.Bytes(uint64(file.Size)))
	}

	mimeType := strings.ToLower(strings.TrimSpace(file.MimeType))
	if !s.allowed(mimeType) {
		return model.PendingUpload{}, errors.WithMessagef(ErrUnsupportedFileType, "%s", mimeType)
	}

	kind := ClassifyKind(mimeType)
	if file.Voice {
		if kind != model.KindAudio {
			return model.PendingUpload{}, errors.WithMessagef(ErrUnsupportedFileType, "语音必须为音频: %s", mimeType)
		}
		kind = model.KindVoice
	}

	localID := file.LocalID
	if localID == "" {
		localID = uuid.NewString()
	}
	return model.PendingUpload{
		LocalID:  localID,
		FileName: file.Name,
		FileSize: file.Size,
		MimeType: mimeType,
		Kind:     kind,
		Status:   model.UploadPending,
	}, nil
}

func (s *AttachmentPipeline) allowed(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	for _, prefix := range s.limits.AllowedMimePrefixes {
		if strings.HasPrefix(mimeType, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// Start 校验通过后开始上传，返回的通道依次产出 pending → uploading(0..100) → complete|error 快照后关闭
// 中间进度在消费方跟不上时会被跳过，终态一定送达
func (s *AttachmentPipeline) Start(ctx context.Context, file File) (<-chan model.PendingUpload, error) {
	pending, err := s.Validate(file)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}

	out := make(chan model.PendingUpload, 8)
	out <- pending
	go s.run(ctx, file, pending, out)
	return out, nil
}

// Upload 阻塞直到终态
func (s *AttachmentPipeline) Upload(ctx context.Context, file File) (*model.Attachment, error) {
	return s.UploadWithProgress(ctx, file, nil)
}

// UploadWithProgress 阻塞直到终态，onProgress 接收每一份快照
func (s *AttachmentPipeline) UploadWithProgress(ctx context.Context, file File, onProgress func(model.PendingUpload)) (*model.Attachment, error) {
	updates, err := s.Start(ctx, file)
	if err != nil {
		return nil, err
	}
	var last model.PendingUpload
	for p := range updates {
		last = p
		if onProgress != nil {
			onProgress(p)
		}
	}
	if last.Status != model.UploadComplete || last.Result == nil {
		return nil, errors.WithMessage(ErrUploadFailed, last.ErrorMessage)
	}
	return last.Result, nil
}

// UploadAll 并发上传，单个失败不影响其他文件
func (s *AttachmentPipeline) UploadAll(ctx context.Context, files []File) []UploadResult {
	results := make([]UploadResult, len(files))
	var g errgroup.Group
	g.SetLimit(s.limits.MaxConcurrent)
	for i := range files {
		g.Go(func() error {
			att, err := s.Upload(ctx, files[i])
			results[i] = UploadResult{LocalID: files[i].LocalID, Attachment: att, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *AttachmentPipeline) run(ctx context.Context, file File, pending model.PendingUpload, out chan model.PendingUpload) {
	defer close(out)

	emitter := &progressEmitter{total: file.Size, current: pending, out: out}
	emitter.emit(pending.WithProgress(0))

	objectName := util.BuildObjectName(s.now(), file.Name)
	key, err := s.storage.Put(ctx, objectName, file.Reader, file.Size, pending.MimeType, emitter)
	if err != nil {
		metrics.Uploads.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "attachment upload failed", "file", file.Name, "object", objectName, "err", err)
		emitter.finish(pending.Failed(ErrUploadFailed))
		return
	}

	att := model.Attachment{
		URL:             s.storage.URL(key),
		FileName:        file.Name,
		FileSize:        file.Size,
		MimeType:        pending.MimeType,
		DurationSeconds: file.DurationSeconds,
	}

	meta := dto.MediaTempMetadata{
		ObjectKey:  key,
		UploaderID: file.UploaderID,
		MimeType:   pending.MimeType,
		Size:       file.Size,
		Duration:   file.DurationSeconds,
		CreatedAt:  s.now().Unix(),
	}

	if pending.Kind == model.KindImage && s.limits.ThumbnailSize > 0 {
		if thumbKey, err := s.thumbnail(ctx, file, key); err != nil {
			log.WarnContext(ctx, "thumbnail generation failed", "object", key, "err", err)
		} else {
			att.ThumbnailURL = s.storage.URL(thumbKey)
			meta.ThumbnailKey = thumbKey
		}
	}

	if err = s.ledger.Track(ctx, att.URL, meta); err != nil {
		log.WarnContext(ctx, "track temp media failed", "url", att.URL, "err", err)
	}

	metrics.Uploads.WithLabelValues("complete").Inc()
	metrics.UploadBytes.Add(float64(file.Size))
	log.InfoContext(ctx, "attachment uploaded", "object", key, "kind", pending.Kind, "size", file.Size)
	emitter.finish(emitter.snapshot().Completed(att))
}

func (s *AttachmentPipeline) thumbnail(ctx context.Context, file File, key string) (string, error) {
	if _, err := file.Reader.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	data, _, err := util.MakeThumbnail(file.Reader, s.limits.ThumbnailSize)
	if err != nil {
		return "", err
	}
	return s.storage.Put(ctx, util.ThumbnailName(key), bytes.NewReader(data), int64(len(data)), util.ThumbnailContentType, nil)
}

// Release 附件被消息引用后移出台账
func (s *AttachmentPipeline) Release(ctx context.Context, urls ...string) {
	if len(urls) == 0 {
		return
	}
	if err := s.ledger.Release(ctx, urls...); err != nil {
		log.WarnContext(ctx, "release temp media failed", "count", len(urls), "err", err)
	}
}

// progressEmitter 作为 PutObjectOptions.Progress，按已上传字节换算百分比
type progressEmitter struct {
	mu      sync.Mutex
	total   int64
	sent    int64
	current model.PendingUpload
	out     chan model.PendingUpload
	done    bool
}

func (p *progressEmitter) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return len(b), nil
	}
	p.sent += int64(len(b))
	percent := 100
	if p.total > 0 && p.sent < p.total {
		percent = int(p.sent * 100 / p.total)
	}
	if percent != p.current.ProgressPercent {
		p.emitLocked(p.current.WithProgress(percent))
	}
	return len(b), nil
}

func (p *progressEmitter) emit(next model.PendingUpload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked(next)
}

// emitLocked 预留一个缓冲位给终态
func (p *progressEmitter) emitLocked(next model.PendingUpload) {
	p.current = next
	if len(p.out) < cap(p.out)-1 {
		p.out <- next
	}
}

func (p *progressEmitter) snapshot() model.PendingUpload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *progressEmitter) finish(final model.PendingUpload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	p.current = final
	p.out <- final
}
