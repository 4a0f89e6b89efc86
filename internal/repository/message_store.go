package repository

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/metrics"
	"Tradelink/internal/pkg/mongo"
	"context"
	log "log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScopeFilter 快照范围，空字段不参与过滤
type ScopeFilter struct {
	ScopeID    string
	ScopeKind  model.ScopeKind
	CustomerID string
}

type MessageStore interface {
	List(ctx context.Context, filter ScopeFilter) ([]model.Message, error)
	Subscribe(ctx context.Context, filter ScopeFilter) (*Subscription, error)
	Append(ctx context.Context, msg model.NewMessage) (*model.Message, error)
	MarkRead(ctx context.Context, reader *model.Identity, ids ...string) (int64, error)
}

// StoreOptions 快照上限、轮询兜底间隔与附件公开地址前缀
type StoreOptions struct {
	SnapshotLimit int64
	PollInterval  time.Duration
	MediaBaseURL  string
}

type messageStoreImpl struct {
	messages mongo.ChatMessageRepo
	scopes   ScopeRepo
	notifier ChangeNotifier
	opts     StoreOptions
}

func NewMessageStore(messages mongo.ChatMessageRepo, scopes ScopeRepo, notifier ChangeNotifier, opts StoreOptions) MessageStore {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	return &messageStoreImpl{
		messages: messages,
		scopes:   scopes,
		notifier: notifier,
		opts:     opts,
	}
}

// List 拉取一次完整快照，格式错误的记录被丢弃并记录日志
func (s *messageStoreImpl) List(ctx context.Context, filter ScopeFilter) ([]model.Message, error) {
	docs, skipped, err := s.messages.Find(ctx, toDocFilter(filter), s.opts.SnapshotLimit)
	if err != nil {
		return nil, s.unavailable(ctx, "list", err)
	}
	if skipped > 0 {
		metrics.MalformedRecords.Add(float64(skipped))
	}

	out := make([]model.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := TranslateRecord(doc)
		if err != nil {
			metrics.MalformedRecords.Inc()
			log.WarnContext(ctx, "drop malformed chat record", "id", doc.ID.Hex(), "err", err)
			continue
		}
		out = append(out, msg)
	}
	if s.opts.SnapshotLimit > 0 && int64(len(docs)) >= s.opts.SnapshotLimit {
		log.WarnContext(ctx, "chat snapshot truncated", "filter", filter, "limit", s.opts.SnapshotLimit)
	}
	return out, nil
}

// Subscribe 打开时立即投递一次快照，之后每次变更重新拉取
// 变更来源为 Redis 通知，通知不可用时退化为按 PollInterval 轮询
func (s *messageStoreImpl) Subscribe(ctx context.Context, filter ScopeFilter) (*Subscription, error) {
	first, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	lastSeen, err := s.messages.LastChangeAt(ctx, toDocFilter(filter))
	if err != nil {
		return nil, s.unavailable(ctx, "subscribe", err)
	}

	return NewSubscription(ctx, func(ctx context.Context, emit func([]model.Message)) {
		emit(first)

		changes, closeListener, err := s.notifier.Listen(ctx, ListenChannels(filter)...)
		if err != nil {
			log.WarnContext(ctx, "chat change listener unavailable, polling only", "err", err)
		} else {
			defer func() { _ = closeListener() }()
		}

		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		reload := func() {
			at, err := s.messages.LastChangeAt(ctx, toDocFilter(filter))
			if err != nil {
				if ctx.Err() == nil {
					_ = s.unavailable(ctx, "poll", err)
				}
				return
			}
			snapshot, err := s.List(ctx, filter)
			if err != nil {
				return
			}
			lastSeen = at
			emit(snapshot)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					log.WarnContext(ctx, "chat change listener closed, polling only")
					changes = nil
					continue
				}
				reload()
			case <-ticker.C:
				at, err := s.messages.LastChangeAt(ctx, toDocFilter(filter))
				if err != nil {
					if ctx.Err() == nil {
						_ = s.unavailable(ctx, "poll", err)
					}
					continue
				}
				if at.After(lastSeen) {
					reload()
				}
			}
		}
	}), nil
}

// Append 校验写权限后写入，id 与 createdAt 由存储分配
func (s *messageStoreImpl) Append(ctx context.Context, msg model.NewMessage) (*model.Message, error) {
	if err := s.validateNew(msg); err != nil {
		return nil, err
	}

	scope, err := s.scopes.GetScope(ctx, msg.ScopeID)
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.WithStack(ErrScopeNotFound)
		}
		return nil, s.unavailable(ctx, "append", err)
	}
	sender := &model.Identity{ID: msg.SenderID, DisplayName: msg.SenderName, Role: msg.SenderRole}
	if !scope.CanWrite(sender) {
		return nil, errors.WithStack(ErrPermissionDenied)
	}

	doc := &mongo.ChatMessage{
		ScopeID:    scope.ID,
		ScopeKind:  string(scope.Kind),
		CustomerID: scope.CustomerID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SenderRole: string(msg.SenderRole),
		Body:       msg.Body,
		Kind:       string(msg.Kind),
		Attachment: toDocAttachment(msg.Attachment),
	}
	if err = s.messages.Insert(ctx, doc); err != nil {
		return nil, s.unavailable(ctx, "append", err)
	}
	metrics.MessagesSent.WithLabelValues(doc.Kind).Inc()

	s.notify(ctx, Change{Op: ChangeAppend, ScopeID: doc.ScopeID, ScopeKind: doc.ScopeKind, CustomerID: doc.CustomerID, At: doc.CreatedAt.UnixMilli()})

	created, err := TranslateRecord(doc)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// MarkRead 幂等；只标记对方角色发送的消息，客户只能标记自己范围内的消息
// 部分消息无权标记时，其余消息照常标记并返回 ErrPermissionDenied
func (s *messageStoreImpl) MarkRead(ctx context.Context, reader *model.Identity, ids ...string) (int64, error) {
	if reader == nil || !reader.Role.Valid() {
		return 0, errors.WithStack(ErrPermissionDenied)
	}

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			log.WarnContext(ctx, "skip invalid message id", "id", id)
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return 0, nil
	}

	scopes, err := s.messages.FindScopes(ctx, oids)
	if err != nil {
		return 0, s.unavailable(ctx, "mark_read", err)
	}

	filter := mongo.ReadFilter{IDs: oids, NotSenderRole: string(reader.Role)}
	denied := false
	var allowed []mongo.ChatMessageFilter
	for _, sc := range scopes {
		if reader.Role == model.RoleCustomer && sc.CustomerID != reader.ID {
			denied = true
			continue
		}
		allowed = append(allowed, sc)
	}
	if reader.Role == model.RoleCustomer {
		filter.CustomerID = reader.ID
	}

	modified, err := s.messages.MarkRead(ctx, filter)
	if err != nil {
		return 0, s.unavailable(ctx, "mark_read", err)
	}
	if modified > 0 {
		now := time.Now().UnixMilli()
		for _, sc := range allowed {
			s.notify(ctx, Change{Op: ChangeRead, ScopeID: sc.ScopeID, ScopeKind: sc.ScopeKind, CustomerID: sc.CustomerID, At: now})
		}
	}
	if denied {
		return modified, errors.WithStack(ErrPermissionDenied)
	}
	return modified, nil
}

func (s *messageStoreImpl) notify(ctx context.Context, change Change) {
	if err := s.notifier.Notify(ctx, change); err != nil {
		// 订阅方会在下一次轮询时补上
		log.WarnContext(ctx, "publish chat change failed", "scope_id", change.ScopeID, "op", change.Op, "err", err)
	}
}

func (s *messageStoreImpl) unavailable(ctx context.Context, op string, cause error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	log.ErrorContext(ctx, "chat store failure", "op", op, "err", cause)
	return errors.WithStack(ErrStoreUnavailable)
}

// TranslateRecord 将存储文档转换为领域消息
// 缺少 scope_id / customer_id / sender_id，或角色、类型非法，或非文本消息缺少附件 URL 时视为格式错误
func TranslateRecord(doc *mongo.ChatMessage) (model.Message, error) {
	if doc == nil {
		return model.Message{}, errors.WithMessage(ErrMalformedRecord, "nil record")
	}
	switch {
	case doc.ID.IsZero():
		return model.Message{}, errors.WithMessage(ErrMalformedRecord, "missing id")
	case doc.ScopeID == "":
		return model.Message{}, errors.WithMessage(ErrMalformedRecord, "missing scope_id")
	case doc.CustomerID == "":
		return model.Message{}, errors.WithMessage(ErrMalformedRecord, "missing customer_id")
	case doc.SenderID == "":
		return model.Message{}, errors.WithMessage(ErrMalformedRecord, "missing sender_id")
	}

	role := model.Role(doc.SenderRole)
	if !role.Valid() {
		return model.Message{}, errors.WithMessagef(ErrMalformedRecord, "invalid sender_role %q", doc.SenderRole)
	}
	kind := model.Kind(doc.Kind)
	if kind == "" {
		kind = model.KindText
	}
	if !kind.Valid() {
		return model.Message{}, errors.WithMessagef(ErrMalformedRecord, "invalid kind %q", doc.Kind)
	}
	if kind.HasAttachment() && (doc.Attachment == nil || doc.Attachment.URL == "") {
		return model.Message{}, errors.WithMessagef(ErrMalformedRecord, "%s message without attachment", kind)
	}

	scopeKind := model.ScopeKind(doc.ScopeKind)
	if !scopeKind.Valid() {
		scopeKind = model.ScopeSupport
	}

	msg := model.Message{
		ID:         doc.ID.Hex(),
		ScopeID:    doc.ScopeID,
		ScopeKind:  scopeKind,
		CustomerID: doc.CustomerID,
		SenderID:   doc.SenderID,
		SenderName: doc.SenderName,
		SenderRole: role,
		Body:       doc.Body,
		Kind:       kind,
		CreatedAt:  doc.CreatedAt,
		Read:       doc.Read,
	}
	if kind.HasAttachment() {
		msg.Attachment = &model.Attachment{
			URL:             doc.Attachment.URL,
			FileName:        doc.Attachment.FileName,
			FileSize:        doc.Attachment.FileSize,
			MimeType:        doc.Attachment.MimeType,
			ThumbnailURL:    doc.Attachment.ThumbnailURL,
			DurationSeconds: doc.Attachment.DurationSeconds,
		}
	}
	return msg, nil
}

func (s *messageStoreImpl) validateNew(msg model.NewMessage) error {
	switch {
	case msg.ScopeID == "":
		return errors.WithMessage(ErrMalformedRecord, "missing scope id")
	case msg.SenderID == "" || !msg.SenderRole.Valid():
		return errors.WithStack(ErrPermissionDenied)
	case !msg.Kind.Valid():
		return errors.WithMessagef(ErrMalformedRecord, "invalid kind %q", msg.Kind)
	case msg.Kind.HasAttachment() && msg.Attachment == nil:
		return errors.WithMessage(ErrMalformedRecord, "attachment required")
	case msg.Attachment != nil && !CheckAttachment(s.opts.MediaBaseURL, msg.Attachment.URL, msg.Attachment.ThumbnailURL):
		return errors.WithMessagef(ErrNotUploaded, "attachment url %q", msg.Attachment.URL)
	}
	return nil
}

func toDocAttachment(att *model.Attachment) *mongo.Attachment {
	if att == nil {
		return nil
	}
	return &mongo.Attachment{
		URL:             att.URL,
		FileName:        att.FileName,
		FileSize:        att.FileSize,
		MimeType:        att.MimeType,
		ThumbnailURL:    att.ThumbnailURL,
		DurationSeconds: att.DurationSeconds,
	}
}

func toDocFilter(filter ScopeFilter) mongo.ChatMessageFilter {
	return mongo.ChatMessageFilter{
		ScopeID:    filter.ScopeID,
		ScopeKind:  string(filter.ScopeKind),
		CustomerID: filter.CustomerID,
	}
}
