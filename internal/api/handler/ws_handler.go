package handler

import (
	"Tradelink/internal/api/dto"
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/logger"
	"Tradelink/internal/pkg/metrics"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/pkg/security"
	"Tradelink/internal/pkg/util"
	"Tradelink/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit  = 64 << 10
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WriteLimiter 按用户限制写入频率，与 HTTP 发送接口共用
type WriteLimiter interface {
	Allow(key string) bool
}

type WsHandler struct {
	chatService  service.ChatService
	authenticate security.Authenticator
	limiter      WriteLimiter
	writeTimeout time.Duration
}

func NewWsHandler(chatService service.ChatService, authenticate security.Authenticator, limiter WriteLimiter, writeTimeout time.Duration) *WsHandler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WsHandler{chatService: chatService, authenticate: authenticate, limiter: limiter, writeTimeout: writeTimeout}
}

// Connect 实时会话视图，浏览器无法设置 Header，Token 通过 query 传递
func (s *WsHandler) Connect(c *gin.Context) {
	who, err := s.authenticate(c.Request.Context(), c.Query("token"))
	if err != nil {
		log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
		response.Error(c, service.ErrUnauthenticated)
		return
	}

	var q dto.ThreadQuery
	if err = c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	ctx := logger.WithUserID(service.WithIdentity(c.Request.Context(), who), who.ID)
	view, err := s.chatService.OpenView(ctx, &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer s.chatService.CloseView(view)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(ctx, "WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	log.InfoContext(ctx, "用户 WS 连接已建立", "kind", q.Kind, "scope_id", q.ScopeID)

	replies := make(chan dto.ServerFrame, 16)
	stopChan := make(chan struct{})

	// 读循环：解析客户端指令，连接断开时通知写循环退出
	go func() {
		defer close(stopChan)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame dto.ClientFrame
			if err = json.Unmarshal(data, &frame); err != nil {
				offerFrame(replies, errorFrame("", service.ErrParamInvalid))
				continue
			}
			if reply, ok := s.handleClientFrame(ctx, view, &frame); ok {
				offerFrame(replies, reply)
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	// 写循环：gorilla 连接只允许一个写者
	updates, notices := view.Updates(), view.Notices()
	for {
		var frame dto.ServerFrame
		select {
		case state, ok := <-updates:
			if !ok {
				return
			}
			frame = dto.ServerFrame{Type: dto.FrameState, Threads: state.Threads, Active: state.Active, Unread: state.UnreadTotal}
		case n, ok := <-notices:
			if !ok {
				return
			}
			frame = noticeFrame(n)
		case frame = <-replies:
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-stopChan:
			log.InfoContext(ctx, "用户 WS 连接已断开")
			return
		}

		if err := s.writeFrame(conn, frame); err != nil {
			log.WarnContext(ctx, "WS 推送失败", "type", frame.Type, "err", err)
			return
		}
	}
}

func (s *WsHandler) writeFrame(conn *websocket.Conn, frame dto.ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// handleClientFrame 返回需要回给客户端的帧
func (s *WsHandler) handleClientFrame(ctx context.Context, view *service.ConversationView, frame *dto.ClientFrame) (dto.ServerFrame, bool) {
	if (frame.Type == dto.FrameSend || frame.Type == dto.FrameRetry) && !s.allowWrite(view.Viewer()) {
		metrics.RateLimited.WithLabelValues("chat_ws").Inc()
		return errorFrame(frame.LocalID, service.ErrTooManyRequests), true
	}

	switch frame.Type {
	case dto.FrameSelect:
		counterpartyID := frame.CounterpartyID
		if view.Viewer().Role == model.RoleCustomer {
			counterpartyID = model.SupportDeskID
		}
		view.Select(model.ThreadKey{ScopeID: frame.ScopeID, CounterpartyID: counterpartyID})
	case dto.FrameSend:
		req := dto.SendMessageReq{ScopeID: frame.ScopeID, Body: frame.Body, Attachments: frame.Attachments}
		if err := util.ValidateDTO(&req); err != nil {
			log.WarnContext(ctx, "WS 发送参数错误", "err", err)
			return errorFrame(frame.LocalID, service.ErrParamInvalid), true
		}
		if _, err := view.Send(service.ToSendRequest(req.ScopeID, req.Body, req.Attachments), frame.CounterpartyID); err != nil {
			return errorFrame(frame.LocalID, err), true
		}
	case dto.FrameRetry:
		if err := view.Retry(frame.LocalID); err != nil {
			return errorFrame(frame.LocalID, err), true
		}
	case dto.FrameDiscard:
		if err := view.Discard(frame.LocalID); err != nil {
			return errorFrame(frame.LocalID, err), true
		}
	default:
		return errorFrame(frame.LocalID, service.ErrParamInvalid), true
	}
	return dto.ServerFrame{}, false
}

func (s *WsHandler) allowWrite(who *model.Identity) bool {
	return s.limiter == nil || s.limiter.Allow(who.ID)
}

func noticeFrame(n service.Notice) dto.ServerFrame {
	if n.Err != nil {
		return errorFrame(n.LocalID, n.Err)
	}
	return dto.ServerFrame{Type: dto.FrameUpload, Upload: n.Upload, LocalID: n.LocalID}
}

// errorFrame 未登记的错误不向客户端暴露细节
func errorFrame(localID string, err error) dto.ServerFrame {
	msg := service.UnExpectedError.Error()
	if _, ok := service.CodeOf(err); ok {
		msg = err.Error()
	}
	return dto.ServerFrame{Type: dto.FrameError, LocalID: localID, Error: msg, Retryable: service.Retryable(err)}
}

func offerFrame(ch chan dto.ServerFrame, frame dto.ServerFrame) {
	select {
	case ch <- frame:
	default:
	}
}
