package handler

import (
	"Tradelink/internal/api/dto"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/pkg/util"
	"Tradelink/internal/service"
	"errors"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// multipart 边界与表单字段的余量
const multipartHeadroom = 64 << 10

type MediaHandler struct {
	chatService service.ChatService
	maxBody     int64
}

// NewMediaHandler maxFileBytes 为附件大小上限，请求体在传输层按它截断
func NewMediaHandler(chatService service.ChatService, maxFileBytes int64) *MediaHandler {
	return &MediaHandler{chatService: chatService, maxBody: maxFileBytes + multipartHeadroom}
}

// Upload 上传附件，可选表单字段 localId 用于关联前端的占位
func (s *MediaHandler) Upload(c *gin.Context) {
	s.limitBody(c)
	fileHeader, reader, ok := openFormFile(c)
	if !ok {
		return
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.GetSafeContentType(reader, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.chatService.Upload(c.Request.Context(), service.File{
		LocalID:  c.PostForm("localId"),
		Name:     fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: contentType,
		Reader:   reader,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	log.InfoContext(c.Request.Context(), "media upload success", "url", res.Attachment.URL, "type", contentType)
	response.Success(c, res)
}

// UploadVoice 上传录音，duration 为录音时长（秒）
func (s *MediaHandler) UploadVoice(c *gin.Context) {
	s.limitBody(c)
	var req dto.VoiceUploadReq
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, formError(err))
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}

	fileHeader, reader, ok := openFormFile(c)
	if !ok {
		return
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.GetSafeContentType(reader, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	file := service.NewVoiceFile(reader, fileHeader.Size, contentType, req.Duration, time.Now())
	file.LocalID = c.PostForm("localId")
	res, err := s.chatService.Upload(c.Request.Context(), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *MediaHandler) limitBody(c *gin.Context) {
	if s.maxBody > multipartHeadroom {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
	}
}

// formError 请求体超限时返回 ErrFileTooLarge
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return service.ErrFileTooLarge
	}
	return service.ErrParamInvalid
}

func openFormFile(c *gin.Context) (*multipart.FileHeader, multipart.File, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.WarnContext(c.Request.Context(), "read upload form failed", "err", err)
		response.Error(c, formError(err))
		return nil, nil, false
	}
	reader, err := fileHeader.Open()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return nil, nil, false
	}
	return fileHeader, reader, true
}
