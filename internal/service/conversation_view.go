package service

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/metrics"
	"Tradelink/internal/repository"
	"context"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultReconcileWindow = 30 * time.Second

// 存储时间允许略早于回显时间的误差
const echoClockSkew = time.Second

// Subscriber 实时快照来源
type Subscriber interface {
	Subscribe(ctx context.Context, filter repository.ScopeFilter) (*repository.Subscription, error)
}

// ViewConfig 会话视图参数
type ViewConfig struct {
	Filter            repository.ScopeFilter
	PreviewLength     int
	ReconcileWindow   time.Duration
	CounterpartyNames map[model.ThreadKey]string
	SupportDeskName   string
}

// ViewState 推送给客户端的完整状态
type ViewState struct {
	Threads     []model.Thread
	Active      *model.Thread
	UnreadTotal int
}

// Notice 上传进度与发送失败等旁路事件
type Notice struct {
	Upload  *model.PendingUpload
	LocalID string
	Err     error
}

type echo struct {
	msg     model.Message
	req     SendRequest
	acked   []string
	matched string
}

// ConversationView 单个连接的实时会话视图
// 持有一个订阅、最新快照、本地回显与当前选中的线程
type ConversationView struct {
	viewer  *model.Identity
	ctx     context.Context
	cancel  context.CancelFunc
	sender  Sender
	tracker *ReadTracker
	cfg     ViewConfig
	now     func() time.Time
	sub     *repository.Subscription

	mu       sync.Mutex
	closed   bool
	snapshot []model.Message
	echoes   []*echo
	claimed  map[string]struct{}
	// 写入尚未返回、已按内容关联移除的回显，写入失败时恢复
	settled  map[string]*echo
	active   *model.ThreadKey
	updates  chan ViewState
	notices  chan Notice
}

// OpenConversationView 订阅快照并开始推送，调用方负责 Close
func OpenConversationView(ctx context.Context, viewer *model.Identity, store Subscriber, sender Sender, tracker *ReadTracker, cfg ViewConfig) (*ConversationView, error) {
	if viewer == nil {
		return nil, ErrUnauthenticated
	}
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = defaultReconcileWindow
	}

	viewCtx, cancel := context.WithCancel(WithIdentity(ctx, viewer))
	sub, err := store.Subscribe(viewCtx, cfg.Filter)
	if err != nil {
		cancel()
		return nil, err
	}

	v := &ConversationView{
		viewer:  viewer,
		ctx:     viewCtx,
		cancel:  cancel,
		sender:  sender,
		tracker: tracker,
		cfg:     cfg,
		now:     time.Now,
		sub:     sub,
		claimed: make(map[string]struct{}),
		settled: make(map[string]*echo),
		updates: make(chan ViewState, 1),
		notices: make(chan Notice, 32),
	}
	metrics.LiveViews.Inc()

	go func() {
		for snapshot := range sub.C {
			v.applySnapshot(snapshot)
		}
	}()
	return v, nil
}

// Updates 只保留最新状态，Close 后关闭
func (v *ConversationView) Updates() <-chan ViewState {
	return v.updates
}

// Notices Close 后关闭，消费不及时的事件会被丢弃
func (v *ConversationView) Notices() <-chan Notice {
	return v.notices
}

// Select 切换当前线程并标记已读
func (v *ConversationView) Select(key model.ThreadKey) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.active = &key
	state := v.rebuildLocked()
	v.emitLocked(state)
	v.mu.Unlock()

	v.markActive(state.Active)
}

// Send 为每条待写入消息创建本地回显并异步提交，返回回显的本地 ID
// counterpartyID 仅在管理员向尚无消息的范围发送时用于确定客户
func (v *ConversationView) Send(req SendRequest, counterpartyID string) ([]string, error) {
	if err := validateSend(req); err != nil {
		return nil, err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrViewClosed
	}

	target, err := v.targetLocked(req.ScopeID, counterpartyID)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	req.ScopeID = target.ScopeID

	var pending []*echo
	var localIDs []string
	for _, piece := range splitRequest(req) {
		planned := planMessages(v.viewer, target.ScopeID, target.ScopeKind, target.CustomerID, piece)[0]
		e := &echo{
			msg: model.Message{
				LocalID:    uuid.NewString(),
				ScopeID:    planned.ScopeID,
				ScopeKind:  planned.ScopeKind,
				CustomerID: planned.CustomerID,
				SenderID:   planned.SenderID,
				SenderName: planned.SenderName,
				SenderRole: planned.SenderRole,
				Body:       planned.Body,
				Kind:       planned.Kind,
				Attachment: planned.Attachment,
				CreatedAt:  echoTime(v.now()),
				Read:       true,
				Pending:    true,
			},
			req: piece,
		}
		v.echoes = append(v.echoes, e)
		pending = append(pending, e)
		localIDs = append(localIDs, e.msg.LocalID)
	}
	v.emitLocked(v.rebuildLocked())
	v.mu.Unlock()

	go func() {
		for _, e := range pending {
			v.dispatch(e.msg.LocalID, e.req)
		}
	}()
	return localIDs, nil
}

// Retry 重新提交失败的回显
func (v *ConversationView) Retry(localID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	e := v.findEchoLocked(localID)
	if e == nil || !e.msg.Failed {
		v.mu.Unlock()
		return ErrParamInvalid
	}
	e.msg.Failed = false
	e.msg.Error = ""
	e.msg.Pending = true
	e.msg.CreatedAt = echoTime(v.now())
	req := e.req
	v.emitLocked(v.rebuildLocked())
	v.mu.Unlock()

	go v.dispatch(localID, req)
	return nil
}

// Discard 移除失败的回显
func (v *ConversationView) Discard(localID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	for i, e := range v.echoes {
		if e.msg.LocalID != localID {
			continue
		}
		if !e.msg.Failed {
			return ErrParamInvalid
		}
		v.echoes = append(v.echoes[:i], v.echoes[i+1:]...)
		v.emitLocked(v.rebuildLocked())
		return nil
	}
	return ErrParamInvalid
}

// PublishUpload 转发上传进度
func (v *ConversationView) PublishUpload(p model.PendingUpload) {
	v.notify(Notice{Upload: &p, LocalID: p.LocalID})
}

// Close 取消订阅，返回后不再推送任何事件
func (v *ConversationView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.updates)
	close(v.notices)
	v.mu.Unlock()

	v.cancel()
	v.sub.Unsubscribe()
	metrics.LiveViews.Dec()
}

// Viewer 视图所属用户
func (v *ConversationView) Viewer() *model.Identity {
	return v.viewer
}

// Context 携带视图用户身份，Close 后取消
func (v *ConversationView) Context() context.Context {
	return v.ctx
}

func (v *ConversationView) applySnapshot(snapshot []model.Message) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.snapshot = snapshot
	v.reconcileLocked()
	state := v.rebuildLocked()
	v.emitLocked(state)
	v.mu.Unlock()

	// 当前线程新到的消息同样视为已读
	v.markActive(state.Active)
}

// dispatch 在途写入不随视图关闭而取消
func (v *ConversationView) dispatch(localID string, req SendRequest) {
	sent, err := v.sender.Send(context.WithoutCancel(v.ctx), req)

	v.mu.Lock()
	defer v.mu.Unlock()
	e := v.findEchoLocked(localID)
	if e == nil {
		e = v.settled[localID]
		delete(v.settled, localID)
		if e == nil {
			return
		}
		if err == nil && len(sent) > 0 {
			v.ackSettledLocked(e, sent)
			return
		}
		// 关联到的并非本次写入，恢复为失败回显
		delete(v.claimed, e.matched)
		e.matched = ""
		v.echoes = append(v.echoes, e)
	}
	if err != nil || len(sent) == 0 {
		if err == nil {
			err = UnExpectedError
		}
		e.msg.Pending = false
		e.msg.Failed = true
		e.msg.Error = err.Error()
		log.WarnContext(v.ctx, "optimistic send failed", "local_id", localID, "viewer", v.viewer.ID, "err", err)
		if !v.closed {
			v.notifyLocked(Notice{LocalID: localID, Err: err})
			v.emitLocked(v.rebuildLocked())
		}
		return
	}

	for _, m := range sent {
		e.acked = append(e.acked, m.ID)
		v.claimed[m.ID] = struct{}{}
	}
	if v.reconcileLocked() && !v.closed {
		v.emitLocked(v.rebuildLocked())
	}
}

// ackSettledLocked 写入确认的 ID 与内容关联结果不一致时，释放关联的消息
func (v *ConversationView) ackSettledLocked(e *echo, sent []*model.Message) {
	keep := false
	for _, m := range sent {
		v.claimed[m.ID] = struct{}{}
		if m.ID == e.matched {
			keep = true
		}
	}
	if !keep {
		delete(v.claimed, e.matched)
	}
}

// reconcileLocked 快照中出现确认 ID 的回显被移除；尚未确认的回显按发送者、类型、正文与时间窗口关联
// 返回是否有回显被移除
func (v *ConversationView) reconcileLocked() bool {
	present := make(map[string]*model.Message, len(v.snapshot))
	for i := range v.snapshot {
		present[v.snapshot[i].ID] = &v.snapshot[i]
	}

	kept := v.echoes[:0]
	removed := false
	for _, e := range v.echoes {
		if v.confirmedLocked(e, present) {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(v.echoes); i++ {
		v.echoes[i] = nil
	}
	v.echoes = kept
	return removed
}

func (v *ConversationView) confirmedLocked(e *echo, present map[string]*model.Message) bool {
	if len(e.acked) > 0 {
		for _, id := range e.acked {
			if _, ok := present[id]; !ok {
				return false
			}
		}
		return true
	}
	if !e.msg.Pending {
		return false
	}
	for i := range v.snapshot {
		m := &v.snapshot[i]
		if _, taken := v.claimed[m.ID]; taken {
			continue
		}
		if correlates(&e.msg, m, v.cfg.ReconcileWindow) {
			v.claimed[m.ID] = struct{}{}
			e.matched = m.ID
			v.settled[e.msg.LocalID] = e
			return true
		}
	}
	return false
}

func correlates(echoMsg, stored *model.Message, window time.Duration) bool {
	if echoMsg.SenderID != stored.SenderID || echoMsg.Kind != stored.Kind || echoMsg.ScopeID != stored.ScopeID {
		return false
	}
	if echoMsg.Body != stored.Body {
		return false
	}
	// 早于回显创建的消息不可能是这次发送
	diff := stored.CreatedAt.Sub(echoMsg.CreatedAt)
	return diff >= -echoClockSkew && diff <= window
}

func (v *ConversationView) rebuildLocked() ViewState {
	all := make([]model.Message, 0, len(v.snapshot)+len(v.echoes))
	all = append(all, v.snapshot...)
	for _, e := range v.echoes {
		all = append(all, e.msg)
	}
	threads := AggregateThreads(all, v.viewer.Role, AggregateOptions{
		PreviewLength:     v.cfg.PreviewLength,
		CounterpartyNames: v.cfg.CounterpartyNames,
		SupportDeskName:   v.cfg.SupportDeskName,
	})

	state := ViewState{
		Threads:     WithoutMessages(threads),
		UnreadTotal: UnreadTotal(threads),
	}
	if v.active != nil {
		if t := FindThread(threads, *v.active); t != nil {
			active := *t
			state.Active = &active
		}
	}
	return state
}

// emitLocked 通道只保留最新状态
func (v *ConversationView) emitLocked(state ViewState) {
	select {
	case v.updates <- state:
		return
	default:
	}
	select {
	case <-v.updates:
	default:
	}
	select {
	case v.updates <- state:
	default:
	}
}

func (v *ConversationView) notify(n Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.notifyLocked(n)
}

func (v *ConversationView) notifyLocked(n Notice) {
	select {
	case v.notices <- n:
	default:
		log.DebugContext(v.ctx, "drop view notice", "local_id", n.LocalID)
	}
}

func (v *ConversationView) markActive(thread *model.Thread) {
	if thread == nil || v.tracker == nil {
		return
	}
	if len(UnreadInbound(thread, v.viewer.Role)) == 0 {
		return
	}
	go v.tracker.MarkThreadRead(v.ctx, v.viewer, thread)
}

func (v *ConversationView) findEchoLocked(localID string) *echo {
	for _, e := range v.echoes {
		if e.msg.LocalID == localID {
			return e
		}
	}
	return nil
}

type echoTarget struct {
	ScopeID    string
	ScopeKind  model.ScopeKind
	CustomerID string
}

// targetLocked 回显所属范围：客户默认落在自己的客服会话，管理员必须指定范围
func (v *ConversationView) targetLocked(scopeID, counterpartyID string) (echoTarget, error) {
	scopeID = strings.TrimSpace(scopeID)
	if v.viewer.Role == model.RoleCustomer {
		if scopeID == "" || scopeID == v.viewer.ID {
			return echoTarget{ScopeID: v.viewer.ID, ScopeKind: model.ScopeSupport, CustomerID: v.viewer.ID}, nil
		}
		return echoTarget{ScopeID: scopeID, ScopeKind: v.scopeKindLocked(scopeID), CustomerID: v.viewer.ID}, nil
	}

	if scopeID == "" {
		return echoTarget{}, ErrParamInvalid
	}
	target := echoTarget{ScopeID: scopeID, ScopeKind: v.scopeKindLocked(scopeID), CustomerID: counterpartyID}
	if target.CustomerID == "" && v.active != nil && v.active.ScopeID == scopeID {
		target.CustomerID = v.active.CounterpartyID
	}
	if target.CustomerID == "" {
		for i := range v.snapshot {
			if v.snapshot[i].ScopeID == scopeID {
				target.CustomerID = v.snapshot[i].CustomerID
				break
			}
		}
	}
	return target, nil
}

func (v *ConversationView) scopeKindLocked(scopeID string) model.ScopeKind {
	for i := range v.snapshot {
		if v.snapshot[i].ScopeID == scopeID {
			return v.snapshot[i].ScopeKind
		}
	}
	if v.cfg.Filter.ScopeKind.Valid() {
		return v.cfg.Filter.ScopeKind
	}
	return model.ScopeSupport
}
