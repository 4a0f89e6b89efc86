package service

import (
	"Tradelink/internal/repository"
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	PayloadTooLarge     = 413
	UnsupportedMedia    = 415
	TooManyRequests     = 429
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	ErrParamInvalid          = errors.New("参数错误")
	ErrUnauthenticated       = errors.New("未登录")
	ErrPermissionDenied      = repository.ErrPermissionDenied
	ErrStoreUnavailable      = repository.ErrStoreUnavailable
	ErrEmptyMessage          = errors.New("消息内容不能为空")
	ErrFileTooLarge          = errors.New("文件过大")
	ErrUnsupportedFileType   = errors.New("不支持的文件类型")
	ErrUploadFailed          = errors.New("附件上传失败")
	ErrAttachmentNotUploaded = repository.ErrNotUploaded
	ErrMalformedMessage      = repository.ErrMalformedRecord
	ErrScopeNotFound         = repository.ErrScopeNotFound
	ErrScopeExist            = repository.ErrDuplicateScope
	ErrTooManyRequests       = errors.New("操作过于频繁")
	ErrViewClosed            = errors.New("会话视图已关闭")
	UnExpectedError          = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:          BadRequest,
	ErrUnauthenticated:       Unauthorized,
	ErrPermissionDenied:      Forbidden,
	ErrStoreUnavailable:      ServiceUnavailable,
	ErrEmptyMessage:          BadRequest,
	ErrFileTooLarge:          PayloadTooLarge,
	ErrUnsupportedFileType:   UnsupportedMedia,
	ErrUploadFailed:          ServiceUnavailable,
	ErrAttachmentNotUploaded: BadRequest,
	ErrMalformedMessage:      BadRequest,
	ErrScopeNotFound:         NotFound,
	ErrScopeExist:            BadRequest,
	ErrTooManyRequests:       TooManyRequests,
	ErrViewClosed:            BadRequest,
	UnExpectedError:          InternalServerError,
}

// CodeOf 解析（可能被包装过的）错误对应的业务码
func CodeOf(err error) (int, bool) {
	if code, ok := ErrorMap[err]; ok {
		return code, true
	}
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code, true
		}
	}
	return InternalServerError, false
}

// Retryable 是否为可重试的暂时性错误
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrUploadFailed) || errors.Is(err, ErrTooManyRequests)
}
