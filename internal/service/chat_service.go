package service

import (
	"Tradelink/internal/api/dto"
	"Tradelink/internal/model"
	"Tradelink/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// ChatService 会话服务接口定义
type ChatService interface {
	ListThreads(ctx context.Context, q *dto.ThreadQuery) (*dto.ThreadListResp, error)
	GetThread(ctx context.Context, q *dto.MessagesQuery) (*model.Thread, error)
	Send(ctx context.Context, req *dto.SendMessageReq) ([]*model.Message, error)
	MarkThreadRead(ctx context.Context, req *dto.MarkReadReq) (int, error)
	Upload(ctx context.Context, file File) (*dto.UploadResp, error)
	CreateScope(ctx context.Context, req *dto.CreateScopeReq) (*model.Scope, error)
	OpenView(ctx context.Context, q *dto.ThreadQuery) (*ConversationView, error)
	CloseView(v *ConversationView)
}

// ChatOptions 会话展示参数
type ChatOptions struct {
	PreviewLength   int
	ReconcileWindow time.Duration
	SupportDeskName string
}

type chatServiceImpl struct {
	store    repository.MessageStore
	scopes   repository.ScopeRepo
	pipeline *AttachmentPipeline
	composer Sender
	hub      *ViewHub
	opts     ChatOptions
}

func NewChatService(store repository.MessageStore, scopes repository.ScopeRepo, pipeline *AttachmentPipeline, composer Sender, hub *ViewHub, opts ChatOptions) ChatService {
	return &chatServiceImpl{
		store:    store,
		scopes:   scopes,
		pipeline: pipeline,
		composer: composer,
		hub:      hub,
		opts:     opts,
	}
}

// ListThreads 当前用户可见的线程摘要
func (s *chatServiceImpl) ListThreads(ctx context.Context, q *dto.ThreadQuery) (*dto.ThreadListResp, error) {
	who := IdentityFrom(ctx)
	if who == nil {
		return nil, ErrUnauthenticated
	}
	filter, err := ViewerFilter(who, q.Kind, q.ScopeID)
	if err != nil {
		return nil, err
	}

	threads, err := s.threads(ctx, who, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ThreadListResp{
		Threads:     WithoutMessages(threads),
		UnreadTotal: UnreadTotal(threads),
	}, nil
}

// GetThread 单个线程及其消息，线程尚无消息时返回空线程
func (s *chatServiceImpl) GetThread(ctx context.Context, q *dto.MessagesQuery) (*model.Thread, error) {
	who := IdentityFrom(ctx)
	if who == nil {
		return nil, ErrUnauthenticated
	}
	filter, err := ViewerFilter(who, "", q.ScopeID)
	if err != nil {
		return nil, err
	}

	threads, err := s.threads(ctx, who, filter)
	if err != nil {
		return nil, err
	}

	counterpartyID := q.CounterpartyID
	if who.Role == model.RoleCustomer {
		counterpartyID = model.SupportDeskID
	}
	if counterpartyID == "" {
		if len(threads) > 0 {
			t := threads[0]
			return &t, nil
		}
		return &model.Thread{ScopeID: q.ScopeID}, nil
	}

	if t := FindThread(threads, model.ThreadKey{ScopeID: q.ScopeID, CounterpartyID: counterpartyID}); t != nil {
		return t, nil
	}
	return &model.Thread{ScopeID: q.ScopeID, CounterpartyID: counterpartyID}, nil
}

// Send 发送正文与附件
func (s *chatServiceImpl) Send(ctx context.Context, req *dto.SendMessageReq) ([]*model.Message, error) {
	return s.composer.Send(ctx, ToSendRequest(req.ScopeID, req.Body, req.Attachments))
}

// MarkThreadRead 标记线程中对方发来的未读消息
func (s *chatServiceImpl) MarkThreadRead(ctx context.Context, req *dto.MarkReadReq) (int, error) {
	who := IdentityFrom(ctx)
	if who == nil {
		return 0, ErrUnauthenticated
	}
	thread, err := s.GetThread(ctx, &dto.MessagesQuery{ScopeID: req.ScopeID, CounterpartyID: req.CounterpartyID})
	if err != nil {
		return 0, err
	}
	return NewReadTracker(s.store).MarkThreadRead(ctx, who, thread), nil
}

// Upload 上传附件，进度同步推送到该用户打开的实时视图
func (s *chatServiceImpl) Upload(ctx context.Context, file File) (*dto.UploadResp, error) {
	who := IdentityFrom(ctx)
	if who == nil {
		return nil, ErrUnauthenticated
	}
	file.UploaderID = who.ID
	if file.LocalID == "" {
		file.LocalID = uuid.NewString()
	}

	var kind model.Kind
	att, err := s.pipeline.UploadWithProgress(ctx, file, func(p model.PendingUpload) {
		kind = p.Kind
		s.hub.PublishUpload(who.ID, p)
	})
	if err != nil {
		return nil, err
	}
	return &dto.UploadResp{LocalID: file.LocalID, Kind: kind, Attachment: att}, nil
}

// CreateScope 管理员登记询价/合作会话
func (s *chatServiceImpl) CreateScope(ctx context.Context, req *dto.CreateScopeReq) (*model.Scope, error) {
	who := IdentityFrom(ctx)
	if who == nil {
		return nil, ErrUnauthenticated
	}
	if !who.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	scope := &model.Scope{}
	if err := copier.Copy(scope, req); err != nil {
		return nil, UnExpectedError
	}
	scope.Kind = model.ScopeKind(req.Kind)
	if !scope.Kind.Valid() || strings.TrimSpace(scope.ID) == "" || strings.TrimSpace(scope.CustomerID) == "" {
		return nil, ErrParamInvalid
	}

	if err := s.scopes.CreateScope(ctx, scope); err != nil {
		if repository.IsDuplicateKey(err) || errors.Is(err, repository.ErrDuplicateScope) {
			return nil, ErrScopeExist
		}
		log.ErrorContext(ctx, "create scope failed", "scope_id", scope.ID, "err", err)
		return nil, ErrStoreUnavailable
	}
	log.InfoContext(ctx, "scope created", "scope_id", scope.ID, "kind", scope.Kind, "customer", scope.CustomerID, "by", who.ID)
	return scope, nil
}

// OpenView 打开实时视图，调用方结束时必须调用 CloseView
func (s *chatServiceImpl) OpenView(ctx context.Context, q *dto.ThreadQuery) (*ConversationView, error) {
	who := IdentityFrom(ctx)
	if who == nil {
		return nil, ErrUnauthenticated
	}
	filter, err := ViewerFilter(who, q.Kind, q.ScopeID)
	if err != nil {
		return nil, err
	}

	v, err := OpenConversationView(ctx, who, s.store, s.composer, NewReadTracker(s.store), ViewConfig{
		Filter:            filter,
		PreviewLength:     s.opts.PreviewLength,
		ReconcileWindow:   s.opts.ReconcileWindow,
		CounterpartyNames: s.customerScopeNames(ctx, who),
		SupportDeskName:   s.opts.SupportDeskName,
	})
	if err != nil {
		return nil, err
	}
	s.hub.Register(v)
	return v, nil
}

func (s *chatServiceImpl) CloseView(v *ConversationView) {
	s.hub.Unregister(v)
	v.Close()
}

func (s *chatServiceImpl) threads(ctx context.Context, who *model.Identity, filter repository.ScopeFilter) ([]model.Thread, error) {
	msgs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return AggregateThreads(msgs, who.Role, AggregateOptions{
		PreviewLength:     s.opts.PreviewLength,
		CounterpartyNames: s.counterpartyNames(ctx, who, msgs),
		SupportDeskName:   s.opts.SupportDeskName,
	}), nil
}

// counterpartyNames 从会话登记表补全展示名，查询失败时退化为消息中的名字
func (s *chatServiceImpl) counterpartyNames(ctx context.Context, who *model.Identity, msgs []model.Message) map[model.ThreadKey]string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range msgs {
		if _, ok := seen[msgs[i].ScopeID]; ok {
			continue
		}
		seen[msgs[i].ScopeID] = struct{}{}
		ids = append(ids, msgs[i].ScopeID)
	}
	scopes, err := s.scopes.GetScopes(ctx, ids)
	if err != nil {
		log.WarnContext(ctx, "load scope names failed", "count", len(ids), "err", err)
		return nil
	}
	return scopeNames(who, scopes)
}

func (s *chatServiceImpl) customerScopeNames(ctx context.Context, who *model.Identity) map[model.ThreadKey]string {
	if who.Role != model.RoleCustomer {
		return nil
	}
	list, err := s.scopes.ListCustomerScopes(ctx, who.ID)
	if err != nil {
		log.WarnContext(ctx, "load customer scopes failed", "customer", who.ID, "err", err)
		return nil
	}
	scopes := make(map[string]*model.Scope, len(list))
	for _, sc := range list {
		scopes[sc.ID] = sc
	}
	return scopeNames(who, scopes)
}

// scopeNames 管理员看到客户名，客户看到询价/合作的标题
func scopeNames(who *model.Identity, scopes map[string]*model.Scope) map[model.ThreadKey]string {
	names := make(map[model.ThreadKey]string, len(scopes))
	for _, sc := range scopes {
		if who.Role == model.RoleAdmin {
			if sc.CustomerName != "" {
				names[model.ThreadKey{ScopeID: sc.ID, CounterpartyID: sc.CustomerID}] = sc.CustomerName
			}
			continue
		}
		if sc.Kind != model.ScopeSupport && sc.Title != "" {
			names[model.ThreadKey{ScopeID: sc.ID, CounterpartyID: model.SupportDeskID}] = sc.Title
		}
	}
	return names
}

// ViewerFilter 客户只能看到自己的范围；管理员未指定范围时默认查看客服会话
func ViewerFilter(who *model.Identity, kind, scopeID string) (repository.ScopeFilter, error) {
	filter := repository.ScopeFilter{ScopeID: strings.TrimSpace(scopeID)}
	if kind = strings.TrimSpace(kind); kind != "" {
		filter.ScopeKind = model.ScopeKind(kind)
		if !filter.ScopeKind.Valid() {
			return repository.ScopeFilter{}, ErrParamInvalid
		}
	}

	switch who.Role {
	case model.RoleCustomer:
		filter.CustomerID = who.ID
	case model.RoleAdmin:
		if filter.ScopeID == "" && filter.ScopeKind == "" {
			filter.ScopeKind = model.ScopeSupport
		}
	default:
		return repository.ScopeFilter{}, ErrPermissionDenied
	}
	return filter, nil
}

// ToSendRequest 将请求体中的附件转换为发送请求
func ToSendRequest(scopeID, body string, attachments []dto.AttachmentDTO) SendRequest {
	req := SendRequest{ScopeID: scopeID, Body: body}
	for _, a := range attachments {
		req.Attachments = append(req.Attachments, OutgoingAttachment{
			Attachment: model.Attachment{
				URL:             a.URL,
				FileName:        a.FileName,
				FileSize:        a.FileSize,
				MimeType:        a.MimeType,
				ThumbnailURL:    a.ThumbnailURL,
				DurationSeconds: a.DurationSeconds,
			},
			Voice: a.Voice,
		})
	}
	return req
}
