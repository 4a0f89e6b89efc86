package repository

import (
	"net/url"
	"strings"
)

// IsUploadedURL 附件地址必须是对象存储的公开地址
// base 为空时只要求 http(s) 绝对地址
func IsUploadedURL(base, raw string) bool {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if base == "" {
		return true
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return strings.HasPrefix(raw, base) && len(raw) > len(base) && !strings.Contains(raw[len(base):], "..")
}

// CheckAttachment 校验附件及缩略图均来自对象存储
func CheckAttachment(base, fileURL, thumbnailURL string) bool {
	if !IsUploadedURL(base, fileURL) {
		return false
	}
	return thumbnailURL == "" || IsUploadedURL(base, thumbnailURL)
}
