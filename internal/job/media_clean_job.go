package job

import (
	"Tradelink/internal/api/dto"
	"context"
	log "log/slog"
	"time"
)

// TempMediaLedger 已上传但未被消息引用的附件
type TempMediaLedger interface {
	All(ctx context.Context) (map[string]dto.MediaTempMetadata, error)
	Release(ctx context.Context, urls ...string) error
}

// ObjectRemover 对象删除能力
type ObjectRemover interface {
	Remove(ctx context.Context, objectName string) error
}

// MediaCleanupJob 清理超过保留期仍未被消息引用的附件
type MediaCleanupJob struct {
	ledger  TempMediaLedger
	storage ObjectRemover
	ttl     time.Duration
	now     func() time.Time
}

func NewMediaCleanupJob(ledger TempMediaLedger, storage ObjectRemover, ttl time.Duration) *MediaCleanupJob {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MediaCleanupJob{
		ledger:  ledger,
		storage: storage,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MediaCleanupJob) Run() {
	s.RunOnce(context.Background())
}

// RunOnce 返回本次清理的条目数
func (s *MediaCleanupJob) RunOnce(ctx context.Context) int {
	log.InfoContext(ctx, "start media cleanup job")

	allMedia, err := s.ledger.All(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to load temp media ledger", "err", err)
		return 0
	}

	deadline := s.now().Add(-s.ttl).Unix()
	count := 0
	for url, meta := range allMedia {
		if meta.CreatedAt > deadline {
			continue
		}

		if meta.ObjectKey == "" {
			log.WarnContext(ctx, "invalid media meta format", "url", url)
		} else if err = s.storage.Remove(ctx, meta.ObjectKey); err != nil {
			log.ErrorContext(ctx, "failed to delete expired file from minio", "object", meta.ObjectKey, "err", err)
			continue
		}
		if meta.ThumbnailKey != "" {
			if err = s.storage.Remove(ctx, meta.ThumbnailKey); err != nil {
				log.WarnContext(ctx, "failed to delete expired thumbnail", "object", meta.ThumbnailKey, "err", err)
			}
		}

		if err = s.ledger.Release(ctx, url); err != nil {
			log.ErrorContext(ctx, "failed to remove media entry from redis", "url", url, "err", err)
			continue
		}
		count++
		log.InfoContext(ctx, "cleanup expired media resource", "object", meta.ObjectKey, "mime", meta.MimeType, "uploader", meta.UploaderID)
	}

	if count > 0 {
		log.InfoContext(ctx, "media cleanup job finished", "cleaned_count", count)
	}
	return count
}
