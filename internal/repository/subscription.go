package repository

import (
	"Tradelink/internal/model"
	"context"
	"sync"
)

// Subscription 实时快照订阅
// C 只保留最新一份快照，消费慢时旧快照被覆盖
type Subscription struct {
	C <-chan []model.Message

	out    chan []model.Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSubscription 在独立 goroutine 中运行 producer，producer 通过 emit 投递快照
// ctx 结束或 Unsubscribe 时 producer 的 ctx 被取消
func NewSubscription(ctx context.Context, producer func(ctx context.Context, emit func([]model.Message))) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan []model.Message, 1)
	sub := &Subscription{
		C:      out,
		out:    out,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		producer(subCtx, func(snapshot []model.Message) {
			if subCtx.Err() != nil {
				return
			}
			offerLatest(out, snapshot)
		})
	}()
	return sub
}

// Unsubscribe 停止 producer 并关闭 C，返回后不会再有新快照；可重复调用
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		select {
		case <-s.out:
		default:
		}
		close(s.out)
	})
}

// Done producer 退出后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func offerLatest(out chan []model.Message, snapshot []model.Message) {
	for {
		select {
		case out <- snapshot:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
