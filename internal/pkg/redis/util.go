package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetValue 获取字符串类型的值，不存在时返回空串
func GetValue(ctx context.Context, key string) (string, error) {
	value, err := Rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetWithExpiration 设置键值对并设置过期时间
func SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return Rdb.Set(ctx, key, value, expiration).Err()
}

// HSet 设置哈希字段
func HSet(ctx context.Context, key, field string, value interface{}) error {
	return Rdb.HSet(ctx, key, field, value).Err()
}

// HGetAll 获取哈希全部字段
func HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return Rdb.HGetAll(ctx, key).Result()
}

// HDel 删除哈希字段
func HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return Rdb.HDel(ctx, key, fields...).Err()
}

// PublishAll 同一条通知发布到多个频道
func PublishAll(ctx context.Context, payload interface{}, channels ...string) error {
	pipe := Rdb.Pipeline()
	for _, ch := range channels {
		pipe.Publish(ctx, ch, payload)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe 订阅频道
func Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return Rdb.Subscribe(ctx, channels...)
}
