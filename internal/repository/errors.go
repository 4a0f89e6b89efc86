package repository

import "errors"

// 存储层错误，由 service 层映射为业务码
var (
	ErrStoreUnavailable = errors.New("消息服务暂不可用，请稍后重试")
	ErrPermissionDenied = errors.New("权限不足")
	ErrScopeNotFound    = errors.New("会话不存在")
	ErrDuplicateScope   = errors.New("会话已存在")
	ErrMalformedRecord  = errors.New("消息格式错误")
	ErrNotUploaded      = errors.New("附件尚未上传完成")
)
