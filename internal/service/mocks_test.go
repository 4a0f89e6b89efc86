package service_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"Tradelink/internal/api/dto"
	"Tradelink/internal/model"
	"Tradelink/internal/repository"
	"Tradelink/internal/service"
)

type fixedIdentity struct {
	who *model.Identity
}

func (f fixedIdentity) Current(_ context.Context) *model.Identity {
	return f.who
}

type mockAppender struct {
	mu       sync.Mutex
	appendFn func(ctx context.Context, msg model.NewMessage) (*model.Message, error)
	appended []model.NewMessage
	seq      int
}

func (m *mockAppender) Append(ctx context.Context, msg model.NewMessage) (*model.Message, error) {
	m.mu.Lock()
	m.appended = append(m.appended, msg)
	m.seq++
	seq := m.seq
	m.mu.Unlock()
	if m.appendFn != nil {
		return m.appendFn(ctx, msg)
	}
	return storedFrom(msg, fmt.Sprintf("m%d", seq), time.Now()), nil
}

func (m *mockAppender) calls() []model.NewMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.NewMessage(nil), m.appended...)
}

func storedFrom(msg model.NewMessage, id string, at time.Time) *model.Message {
	return &model.Message{
		ID:         id,
		ScopeID:    msg.ScopeID,
		ScopeKind:  msg.ScopeKind,
		CustomerID: msg.CustomerID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SenderRole: msg.SenderRole,
		Body:       msg.Body,
		Kind:       msg.Kind,
		Attachment: msg.Attachment,
		CreatedAt:  at,
	}
}

type mockScopeResolver struct {
	getScopeFn      func(ctx context.Context, id string) (*model.Scope, error)
	ensureSupportFn func(ctx context.Context, customer *model.Identity) (*model.Scope, error)
}

func (m *mockScopeResolver) GetScope(ctx context.Context, id string) (*model.Scope, error) {
	if m.getScopeFn != nil {
		return m.getScopeFn(ctx, id)
	}
	return &model.Scope{ID: id, Kind: model.ScopeRFQ, CustomerID: "c1"}, nil
}

func (m *mockScopeResolver) EnsureSupportScope(ctx context.Context, customer *model.Identity) (*model.Scope, error) {
	if m.ensureSupportFn != nil {
		return m.ensureSupportFn(ctx, customer)
	}
	return &model.Scope{ID: customer.ID, Kind: model.ScopeSupport, CustomerID: customer.ID}, nil
}

type mockReleaser struct {
	mu       sync.Mutex
	released []string
}

func (m *mockReleaser) Release(_ context.Context, urls ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, urls...)
}

type mockNotifier struct {
	mu    sync.Mutex
	calls int
}

func (m *mockNotifier) NotifyNewMessages(_ context.Context, _ *model.Identity, _ *model.Scope, _ []*model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockObjectStorage struct {
	mu       sync.Mutex
	putFn    func(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string, progress io.Reader) (string, error)
	puts     []string
	removeFn func(ctx context.Context, objectName string) error
	removed  []string
}

// Put 默认按 4 段读取并推进进度
func (m *mockObjectStorage) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string, progress io.Reader) (string, error) {
	m.mu.Lock()
	m.puts = append(m.puts, objectName)
	m.mu.Unlock()
	if m.putFn != nil {
		return m.putFn(ctx, objectName, reader, size, contentType, progress)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if progress != nil {
		chunk := len(data) / 4
		if chunk == 0 {
			chunk = len(data)
		}
		for off := 0; off < len(data); off += chunk {
			end := off + chunk
			if end > len(data) {
				end = len(data)
			}
			_, _ = progress.Read(data[off:end])
		}
	}
	return objectName, nil
}

func (m *mockObjectStorage) Remove(ctx context.Context, objectName string) error {
	m.mu.Lock()
	m.removed = append(m.removed, objectName)
	m.mu.Unlock()
	if m.removeFn != nil {
		return m.removeFn(ctx, objectName)
	}
	return nil
}

func (m *mockObjectStorage) URL(objectName string) string {
	return "https://cdn.test/" + objectName
}

func (m *mockObjectStorage) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

type mockLedger struct {
	mu       sync.Mutex
	tracked  map[string]dto.MediaTempMetadata
	released []string
}

func newMockLedger() *mockLedger {
	return &mockLedger{tracked: make(map[string]dto.MediaTempMetadata)}
}

func (m *mockLedger) Track(_ context.Context, url string, meta dto.MediaTempMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[url] = meta
	return nil
}

func (m *mockLedger) Release(_ context.Context, urls ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		delete(m.tracked, u)
	}
	m.released = append(m.released, urls...)
	return nil
}

type mockReadMarker struct {
	mu         sync.Mutex
	markReadFn func(ctx context.Context, reader *model.Identity, ids ...string) (int64, error)
	batches    [][]string
}

func (m *mockReadMarker) MarkRead(ctx context.Context, reader *model.Identity, ids ...string) (int64, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), ids...))
	m.mu.Unlock()
	if m.markReadFn != nil {
		return m.markReadFn(ctx, reader, ids...)
	}
	return int64(len(ids)), nil
}

func (m *mockReadMarker) calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}

// feedSubscriber 测试通过 push 注入快照
type feedSubscriber struct {
	mu        sync.Mutex
	feed      chan []model.Message
	filter    repository.ScopeFilter
	subscribe error
	sub       *repository.Subscription
}

func newFeedSubscriber() *feedSubscriber {
	return &feedSubscriber{feed: make(chan []model.Message, 16)}
}

func (f *feedSubscriber) Subscribe(ctx context.Context, filter repository.ScopeFilter) (*repository.Subscription, error) {
	if f.subscribe != nil {
		return nil, f.subscribe
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	f.sub = repository.NewSubscription(ctx, func(ctx context.Context, emit func([]model.Message)) {
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot := <-f.feed:
				emit(snapshot)
			}
		}
	})
	return f.sub, nil
}

func (f *feedSubscriber) push(snapshot ...model.Message) {
	f.feed <- snapshot
}

type mockSender struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, req service.SendRequest) ([]*model.Message, error)
	reqs   []service.SendRequest
}

func (m *mockSender) Send(ctx context.Context, req service.SendRequest) ([]*model.Message, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, req)
	}
	return nil, nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

type mockMessageStore struct {
	mockReadMarker
	feedSubscriber
	listFn func(ctx context.Context, filter repository.ScopeFilter) ([]model.Message, error)
	lists  []repository.ScopeFilter
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{feedSubscriber: feedSubscriber{feed: make(chan []model.Message, 16)}}
}

func (m *mockMessageStore) List(ctx context.Context, filter repository.ScopeFilter) ([]model.Message, error) {
	m.mockReadMarker.mu.Lock()
	m.lists = append(m.lists, filter)
	m.mockReadMarker.mu.Unlock()
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockMessageStore) Append(_ context.Context, msg model.NewMessage) (*model.Message, error) {
	return storedFrom(msg, "appended", time.Now()), nil
}

type mockScopeRepo struct {
	mockScopeResolver
	createFn    func(ctx context.Context, scope *model.Scope) error
	getScopesFn func(ctx context.Context, ids []string) (map[string]*model.Scope, error)
	listFn      func(ctx context.Context, customerID string) ([]*model.Scope, error)
}

func (m *mockScopeRepo) CreateScope(ctx context.Context, scope *model.Scope) error {
	if m.createFn != nil {
		return m.createFn(ctx, scope)
	}
	return nil
}

func (m *mockScopeRepo) GetScopes(ctx context.Context, ids []string) (map[string]*model.Scope, error) {
	if m.getScopesFn != nil {
		return m.getScopesFn(ctx, ids)
	}
	return map[string]*model.Scope{}, nil
}

func (m *mockScopeRepo) ListCustomerScopes(ctx context.Context, customerID string) ([]*model.Scope, error) {
	if m.listFn != nil {
		return m.listFn(ctx, customerID)
	}
	return nil, nil
}
