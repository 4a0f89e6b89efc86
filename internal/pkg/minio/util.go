package minio

import (
	"Tradelink/internal/api/config"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

// UploadFile 上传文件到 MinIO，progress 非空时按已上传字节数回调
func UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string, progress io.Reader) (string, error) {
	if Client == nil {
		return "", errors.New("minio client is not initialized")
	}

	uploadInfo, err := Client.PutObject(ctx, MainBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    progress,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", objectName)
	}

	return uploadInfo.Key, nil
}

// DeleteFile 删除 MinIO 中的文件
func DeleteFile(ctx context.Context, objectName string) error {
	if Client == nil {
		return errors.New("minio client is not initialized")
	}

	err := Client.RemoveObject(ctx, MainBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s", objectName)
	}

	return nil
}

// GetPublicURL 获取文件的公共访问 URL
func GetPublicURL(objectName string) string {
	return PublicBaseURL() + objectName
}

// PublicBaseURL 主桶的公共访问前缀，附件地址必须以它开头
func PublicBaseURL() string {
	cfg := config.Cfg.MinIO

	protocol := "http"
	if cfg.ExternalUseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/", protocol, cfg.ExternalEndpoint, MainBucket)
}

// ObjectStore 以接口形式暴露给附件流水线
type ObjectStore struct{}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{}
}

func (s *ObjectStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string, progress io.Reader) (string, error) {
	return UploadFile(ctx, objectName, reader, size, contentType, progress)
}

func (s *ObjectStore) Remove(ctx context.Context, objectName string) error {
	return DeleteFile(ctx, objectName)
}

func (s *ObjectStore) URL(objectName string) string {
	return GetPublicURL(objectName)
}
