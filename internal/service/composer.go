package service

import (
	"Tradelink/internal/model"
	"Tradelink/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strings"
)

// OutgoingAttachment 已上传完成的附件，Voice 标记录音
type OutgoingAttachment struct {
	model.Attachment
	Voice bool
}

// SendRequest 一次发送：可选正文加若干附件
type SendRequest struct {
	ScopeID     string
	Body        string
	Attachments []OutgoingAttachment
}

// MessageAppender 消息写入能力
type MessageAppender interface {
	Append(ctx context.Context, msg model.NewMessage) (*model.Message, error)
}

// ScopeResolver 会话范围查询
type ScopeResolver interface {
	GetScope(ctx context.Context, id string) (*model.Scope, error)
	EnsureSupportScope(ctx context.Context, customer *model.Identity) (*model.Scope, error)
}

// MediaReleaser 附件被引用后移出台账
type MediaReleaser interface {
	Release(ctx context.Context, urls ...string)
}

// Sender 发送能力，ConversationView 依赖它
type Sender interface {
	Send(ctx context.Context, req SendRequest) ([]*model.Message, error)
}

type Composer struct {
	identity IdentityAccessor
	store    MessageAppender
	scopes   ScopeResolver
	media    MediaReleaser
	notifier MessageNotifier
	base     string
}

func NewComposer(identity IdentityAccessor, store MessageAppender, scopes ScopeResolver, media MediaReleaser, notifier MessageNotifier) *Composer {
	return &Composer{
		identity: identity,
		store:    store,
		scopes:   scopes,
		media:    media,
		notifier: notifier,
	}
}

// WithMediaBase 只接受该前缀下的附件地址
func (s *Composer) WithMediaBase(base string) *Composer {
	s.base = base
	return s
}

// Send 正文生成一条文本消息，每个附件各生成一条消息，按顺序写入
// 中途失败时返回已写入的消息和错误
func (s *Composer) Send(ctx context.Context, req SendRequest) ([]*model.Message, error) {
	who := s.identity.Current(ctx)
	if who == nil {
		return nil, ErrUnauthenticated
	}
	if err := validateSend(req); err != nil {
		return nil, err
	}
	for _, att := range req.Attachments {
		if !repository.CheckAttachment(s.base, att.URL, att.ThumbnailURL) {
			log.WarnContext(ctx, "reject foreign attachment url", "sender", who.ID, "url", att.URL)
			return nil, ErrAttachmentNotUploaded
		}
	}

	scope, err := s.resolveScope(ctx, who, req.ScopeID)
	if err != nil {
		return nil, err
	}

	planned := planMessages(who, scope.ID, scope.Kind, scope.CustomerID, req)
	sent := make([]*model.Message, 0, len(planned))
	for _, msg := range planned {
		created, err := s.store.Append(ctx, msg)
		if err != nil {
			log.WarnContext(ctx, "append message failed", "scope_id", scope.ID, "sender", who.ID, "kind", msg.Kind, "err", err)
			s.afterSend(ctx, who, scope, sent)
			return sent, err
		}
		sent = append(sent, created)
	}
	s.afterSend(ctx, who, scope, sent)
	return sent, nil
}

func (s *Composer) afterSend(ctx context.Context, who *model.Identity, scope *model.Scope, sent []*model.Message) {
	if len(sent) == 0 {
		return
	}
	var urls []string
	for _, m := range sent {
		if m.Attachment == nil {
			continue
		}
		urls = append(urls, m.Attachment.URL)
		if m.Attachment.ThumbnailURL != "" {
			urls = append(urls, m.Attachment.ThumbnailURL)
		}
	}
	if s.media != nil {
		s.media.Release(ctx, urls...)
	}
	if s.notifier != nil {
		go s.notifier.NotifyNewMessages(context.WithoutCancel(ctx), who, scope, sent)
	}
}

// resolveScope 客户未指定范围或指定自己的 ID 时使用其客服会话
func (s *Composer) resolveScope(ctx context.Context, who *model.Identity, scopeID string) (*model.Scope, error) {
	scopeID = strings.TrimSpace(scopeID)
	if who.Role == model.RoleCustomer && (scopeID == "" || scopeID == who.ID) {
		scope, err := s.scopes.EnsureSupportScope(ctx, who)
		if err != nil {
			log.ErrorContext(ctx, "ensure support scope failed", "customer", who.ID, "err", err)
			return nil, ErrStoreUnavailable
		}
		return scope, nil
	}
	if scopeID == "" {
		return nil, ErrParamInvalid
	}

	scope, err := s.scopes.GetScope(ctx, scopeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrScopeNotFound
		}
		log.ErrorContext(ctx, "get scope failed", "scope_id", scopeID, "err", err)
		return nil, ErrStoreUnavailable
	}
	if !scope.CanWrite(who) {
		return nil, ErrPermissionDenied
	}
	return scope, nil
}

func validateSend(req SendRequest) error {
	if strings.TrimSpace(req.Body) == "" && len(req.Attachments) == 0 {
		return ErrEmptyMessage
	}
	for _, att := range req.Attachments {
		if !repository.IsUploadedURL("", att.URL) {
			return ErrAttachmentNotUploaded
		}
	}
	return nil
}

// planMessages 将一次发送拆分为待写入的消息
func planMessages(who *model.Identity, scopeID string, scopeKind model.ScopeKind, customerID string, req SendRequest) []model.NewMessage {
	base := model.NewMessage{
		ScopeID:    scopeID,
		ScopeKind:  scopeKind,
		CustomerID: customerID,
		SenderID:   who.ID,
		SenderName: who.DisplayName,
		SenderRole: who.Role,
	}

	var out []model.NewMessage
	if body := strings.TrimSpace(req.Body); body != "" {
		msg := base
		msg.Body = body
		msg.Kind = model.KindText
		out = append(out, msg)
	}
	for _, att := range req.Attachments {
		a := att.Attachment
		msg := base
		msg.Body = a.FileName
		msg.Kind = ClassifyKind(a.MimeType)
		if att.Voice {
			msg.Kind = model.KindVoice
		}
		msg.Attachment = &a
		out = append(out, msg)
	}
	return out
}

// splitRequest 每条待写入消息对应一个单独的请求，用于逐条回显与重试
func splitRequest(req SendRequest) []SendRequest {
	var out []SendRequest
	if body := strings.TrimSpace(req.Body); body != "" {
		out = append(out, SendRequest{ScopeID: req.ScopeID, Body: body})
	}
	for _, att := range req.Attachments {
		out = append(out, SendRequest{ScopeID: req.ScopeID, Attachments: []OutgoingAttachment{att}})
	}
	return out
}

// IsRetryableSend 网络或存储暂时性错误可以重试
func IsRetryableSend(err error) bool {
	return err != nil && (Retryable(err) || errors.Is(err, context.DeadlineExceeded))
}
