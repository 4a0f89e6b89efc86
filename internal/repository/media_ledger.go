package repository

import (
	"Tradelink/internal/api/dto"
	"Tradelink/internal/pkg/consts"
	"Tradelink/internal/pkg/redis"
	"context"

	"github.com/goccy/go-json"
)

// MediaLedger 已上传但尚未被消息引用的附件台账，以公共 URL 为键
type MediaLedger interface {
	Track(ctx context.Context, url string, meta dto.MediaTempMetadata) error
	Release(ctx context.Context, urls ...string) error
	All(ctx context.Context) (map[string]dto.MediaTempMetadata, error)
}

type redisMediaLedger struct{}

func NewRedisMediaLedger() MediaLedger {
	return &redisMediaLedger{}
}

func (s *redisMediaLedger) Track(ctx context.Context, url string, meta dto.MediaTempMetadata) error {
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return redis.HSet(ctx, consts.MediaTempKey, url, string(metaBytes))
}

func (s *redisMediaLedger) Release(ctx context.Context, urls ...string) error {
	return redis.HDel(ctx, consts.MediaTempKey, urls...)
}

// All 无法解析的条目以零值返回，由调用方决定如何处理
func (s *redisMediaLedger) All(ctx context.Context) (map[string]dto.MediaTempMetadata, error) {
	raw, err := redis.HGetAll(ctx, consts.MediaTempKey)
	if err != nil {
		return nil, err
	}
	res := make(map[string]dto.MediaTempMetadata, len(raw))
	for url, val := range raw {
		var meta dto.MediaTempMetadata
		_ = json.Unmarshal([]byte(val), &meta)
		res[url] = meta
	}
	return res, nil
}
