package minio

import (
	"Tradelink/internal/api/config"
	"context"
	"fmt"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// Client 全局 MinIO 客户端实例
	Client *minio.Client
	// MainBucket 会话附件存储桶
	MainBucket string
)

// 附件需要被浏览器直接访问
const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// Init 初始化 MinIO 客户端
func Init() error {
	cfg := config.Cfg.MinIO

	endpoint, useSSL := cfg.InternalEndpoint, cfg.InternalUseSSL
	if endpoint == "" {
		endpoint, useSSL = cfg.ExternalEndpoint, cfg.ExternalUseSSL
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize minio client: %w", err)
	}

	Client = client
	MainBucket = cfg.MainBucket
	return EnsureBucket(context.Background(), MainBucket)
}

// EnsureBucket 存储桶不存在时创建并设置公共读
func EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := Client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to connect to minio server: %w", err)
	}
	if exists {
		log.Info("MinIO bucket ready", "bucket", bucket)
		return nil
	}

	if err = Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	if err = Client.SetBucketPolicy(ctx, bucket, fmt.Sprintf(publicReadPolicy, bucket)); err != nil {
		return fmt.Errorf("设置存储桶策略失败: %w", err)
	}
	log.Info("已自动创建存储桶", "bucket", bucket)
	return nil
}
