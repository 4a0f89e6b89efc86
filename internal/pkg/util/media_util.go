package util

import (
	"Tradelink/internal/pkg/consts"
	"bytes"
	"errors"
	"image"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const sniffLen = 512

// GetSafeContentType 根据文件头嗅探 MIME，嗅探不出时退回声明的类型
// reader 读取后会被重置到起始位置
func GetSafeContentType(reader io.ReadSeeker, declared string) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err = reader.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	sniffed := baseMimeType(http.DetectContentType(buf[:n]))
	declared = baseMimeType(declared)
	if sniffed == "application/octet-stream" || sniffed == "text/plain" {
		if declared != "" {
			return declared, nil
		}
	}
	// 浏览器录音多为 webm 容器，嗅探结果是 video/webm
	if sniffed == "video/webm" && strings.HasPrefix(declared, consts.MimePrefixAudio) {
		return declared, nil
	}
	return sniffed, nil
}

func baseMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// BuildObjectName chat/yyyy/mm/dd/<uuid><ext>
func BuildObjectName(now time.Time, fileName string) string {
	return consts.ObjectPrefix + now.Format("2006/01/02/") + uuid.NewString() + strings.ToLower(path.Ext(fileName))
}

// ThumbnailName 缩略图与原图放在同一目录
func ThumbnailName(objectName string) string {
	return strings.TrimSuffix(objectName, path.Ext(objectName)) + consts.ThumbnailSuffix
}

// MakeThumbnail 等比缩放到 size 以内并编码为 JPEG
func MakeThumbnail(reader io.Reader, size int) ([]byte, image.Point, error) {
	src, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, image.Point{}, err
	}
	thumb := imaging.Fit(src, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err = imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, image.Point{}, err
	}
	return buf.Bytes(), thumb.Bounds().Size(), nil
}

// ThumbnailContentType 缩略图统一为 JPEG
const ThumbnailContentType = "image/jpeg"
