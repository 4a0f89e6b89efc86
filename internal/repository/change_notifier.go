package repository

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/consts"
	"Tradelink/internal/pkg/redis"
	"context"
	log "log/slog"

	"github.com/goccy/go-json"
)

// 变更类型
const (
	ChangeAppend = "append"
	ChangeRead   = "read"
)

// Change 会话变更通知，只用于唤醒订阅方重新拉取快照
type Change struct {
	Op         string `json:"op"`
	ScopeID    string `json:"scope_id"`
	ScopeKind  string `json:"scope_kind"`
	CustomerID string `json:"customer_id"`
	At         int64  `json:"at"`
}

type ChangeNotifier interface {
	Notify(ctx context.Context, change Change) error
	Listen(ctx context.Context, channels ...string) (<-chan Change, func() error, error)
}

type redisChangeNotifier struct{}

func NewRedisChangeNotifier() ChangeNotifier {
	return &redisChangeNotifier{}
}

// Notify 同时发布到范围、类型、客户三个频道
func (s *redisChangeNotifier) Notify(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return redis.PublishAll(ctx, string(payload), ChangeChannels(change)...)
}

// Listen 订阅频道，通道满时丢弃通知（订阅方总是拉取完整快照）
func (s *redisChangeNotifier) Listen(ctx context.Context, channels ...string) (<-chan Change, func() error, error) {
	pubsub := redis.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.WarnContext(ctx, "invalid chat change payload", "channel", msg.Channel, "err", err)
				continue
			}
			select {
			case out <- change:
			default:
			}
		}
	}()
	return out, pubsub.Close, nil
}

// ChangeChannels 一次变更需要发布到的频道
func ChangeChannels(change Change) []string {
	channels := []string{consts.ChatScopeChannel + change.ScopeID}
	if change.ScopeKind != "" {
		channels = append(channels, consts.ChatKindChannel+change.ScopeKind)
	}
	if change.CustomerID != "" {
		channels = append(channels, consts.ChatCustomerChannel+change.CustomerID)
	}
	return channels
}

// ListenChannels 订阅某个过滤条件需要监听的频道
func ListenChannels(filter ScopeFilter) []string {
	switch {
	case filter.ScopeID != "":
		return []string{consts.ChatScopeChannel + filter.ScopeID}
	case filter.CustomerID != "":
		return []string{consts.ChatCustomerChannel + filter.CustomerID}
	case filter.ScopeKind != "":
		return []string{consts.ChatKindChannel + string(filter.ScopeKind)}
	}
	return []string{
		consts.ChatKindChannel + string(model.ScopeSupport),
		consts.ChatKindChannel + string(model.ScopeRFQ),
		consts.ChatKindChannel + string(model.ScopePartnership),
	}
}
