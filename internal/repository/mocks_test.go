package repository_test

import (
	"context"
	"sync"
	"time"

	"Tradelink/internal/model"
	"Tradelink/internal/pkg/mongo"
	"Tradelink/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
)

type mockChatMessageRepo struct {
	mu             sync.Mutex
	insertFn       func(ctx context.Context, msg *mongo.ChatMessage) error
	findFn         func(ctx context.Context, filter mongo.ChatMessageFilter, limit int64) ([]*mongo.ChatMessage, int, error)
	markReadFn     func(ctx context.Context, filter mongo.ReadFilter) (int64, error)
	lastChangeAtFn func(ctx context.Context, filter mongo.ChatMessageFilter) (time.Time, error)
	findScopesFn   func(ctx context.Context, ids []primitive.ObjectID) ([]mongo.ChatMessageFilter, error)
	inserted       []*mongo.ChatMessage
	readFilters    []mongo.ReadFilter
	finds          int
}

func (m *mockChatMessageRepo) Insert(ctx context.Context, msg *mongo.ChatMessage) error {
	m.mu.Lock()
	m.inserted = append(m.inserted, msg)
	m.mu.Unlock()
	if m.insertFn != nil {
		return m.insertFn(ctx, msg)
	}
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	return nil
}

func (m *mockChatMessageRepo) Find(ctx context.Context, filter mongo.ChatMessageFilter, limit int64) ([]*mongo.ChatMessage, int, error) {
	m.mu.Lock()
	m.finds++
	m.mu.Unlock()
	if m.findFn != nil {
		return m.findFn(ctx, filter, limit)
	}
	return nil, 0, nil
}

func (m *mockChatMessageRepo) MarkRead(ctx context.Context, filter mongo.ReadFilter) (int64, error) {
	m.mu.Lock()
	m.readFilters = append(m.readFilters, filter)
	m.mu.Unlock()
	if m.markReadFn != nil {
		return m.markReadFn(ctx, filter)
	}
	return int64(len(filter.IDs)), nil
}

func (m *mockChatMessageRepo) LastChangeAt(ctx context.Context, filter mongo.ChatMessageFilter) (time.Time, error) {
	if m.lastChangeAtFn != nil {
		return m.lastChangeAtFn(ctx, filter)
	}
	return time.Time{}, nil
}

func (m *mockChatMessageRepo) FindScopes(ctx context.Context, ids []primitive.ObjectID) ([]mongo.ChatMessageFilter, error) {
	if m.findScopesFn != nil {
		return m.findScopesFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockChatMessageRepo) findCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finds
}

type mockScopeRepo struct {
	getScopeFn func(ctx context.Context, id string) (*model.Scope, error)
}

func (m *mockScopeRepo) CreateScope(_ context.Context, _ *model.Scope) error {
	return nil
}

func (m *mockScopeRepo) GetScope(ctx context.Context, id string) (*model.Scope, error) {
	if m.getScopeFn != nil {
		return m.getScopeFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScopeRepo) GetScopes(_ context.Context, _ []string) (map[string]*model.Scope, error) {
	return map[string]*model.Scope{}, nil
}

func (m *mockScopeRepo) EnsureSupportScope(_ context.Context, customer *model.Identity) (*model.Scope, error) {
	return &model.Scope{ID: customer.ID, Kind: model.ScopeSupport, CustomerID: customer.ID}, nil
}

func (m *mockScopeRepo) ListCustomerScopes(_ context.Context, _ string) ([]*model.Scope, error) {
	return nil, nil
}

type mockChangeNotifier struct {
	mu       sync.Mutex
	notifyFn func(ctx context.Context, change repository.Change) error
	listenFn func(ctx context.Context, channels ...string) (<-chan repository.Change, func() error, error)
	changes  []repository.Change
	channels []string
}

func (m *mockChangeNotifier) Notify(ctx context.Context, change repository.Change) error {
	m.mu.Lock()
	m.changes = append(m.changes, change)
	m.mu.Unlock()
	if m.notifyFn != nil {
		return m.notifyFn(ctx, change)
	}
	return nil
}

func (m *mockChangeNotifier) Listen(ctx context.Context, channels ...string) (<-chan repository.Change, func() error, error) {
	m.mu.Lock()
	m.channels = append(m.channels, channels...)
	m.mu.Unlock()
	if m.listenFn != nil {
		return m.listenFn(ctx, channels...)
	}
	return nil, func() error { return nil }, nil
}

func (m *mockChangeNotifier) notified() []repository.Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.Change(nil), m.changes...)
}

func (m *mockChangeNotifier) listened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.channels...)
}
