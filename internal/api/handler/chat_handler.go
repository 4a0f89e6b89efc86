package handler

import (
	"Tradelink/internal/api/dto"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/pkg/util"
	"Tradelink/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ListThreads 当前用户的线程列表
func (s *ChatHandler) ListThreads(c *gin.Context) {
	var q dto.ThreadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.chatService.ListThreads(c.Request.Context(), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 单个线程的消息
func (s *ChatHandler) GetMessages(c *gin.Context) {
	var q dto.MessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.chatService.GetThread(c.Request.Context(), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Send 发送消息
func (s *ChatHandler) Send(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}

	res, err := s.chatService.Send(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkRead 标记线程已读
func (s *ChatHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	count, err := s.chatService.MarkThreadRead(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"marked": count})
}

// CreateScope 管理员登记询价/合作会话
func (s *ChatHandler) CreateScope(c *gin.Context) {
	var req dto.CreateScopeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}

	res, err := s.chatService.CreateScope(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
