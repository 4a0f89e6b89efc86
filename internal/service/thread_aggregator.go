package service

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/util"
	log "log/slog"
	"sort"
	"time"
)

const defaultPreviewLength = 80

// AggregateOptions 线程聚合参数
type AggregateOptions struct {
	PreviewLength int
	// CounterpartyNames 对端展示名兜底（例如来自会话登记表的客户名）
	CounterpartyNames map[model.ThreadKey]string
	// SupportDeskName 客户视角下对端的展示名
	SupportDeskName string
}

// AggregateThreads 将一组无序消息按 (范围, 对端) 分组为线程
// 线程按最新消息时间倒序，时间相同时按对端 ID、范围 ID 升序
// 每个线程内的消息按时间升序排列
func AggregateThreads(messages []model.Message, viewer model.Role, opts AggregateOptions) []model.Thread {
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = defaultPreviewLength
	}
	if opts.SupportDeskName == "" {
		opts.SupportDeskName = "Support"
	}

	sorted := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if reason := malformedReason(&m, viewer); reason != "" {
			log.Warn("exclude malformed message from threads", "id", m.ID, "local_id", m.LocalID, "scope_id", m.ScopeID, "reason", reason)
			continue
		}
		sorted = append(sorted, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return newerThan(&sorted[i], &sorted[j])
	})

	index := make(map[model.ThreadKey]int)
	var threads []model.Thread
	for i := range sorted {
		m := &sorted[i]
		key := model.ThreadKey{ScopeID: m.ScopeID, CounterpartyID: counterpartyOf(m, viewer)}

		pos, ok := index[key]
		if !ok {
			pos = len(threads)
			index[key] = pos
			threads = append(threads, model.Thread{
				ScopeID:            key.ScopeID,
				ScopeKind:          m.ScopeKind,
				CounterpartyID:     key.CounterpartyID,
				LastMessagePreview: previewOf(m, opts.PreviewLength),
				LastMessageAt:      m.CreatedAt,
			})
		}
		t := &threads[pos]
		if t.CounterpartyDisplayName == "" && m.SenderRole != viewer && m.SenderName != "" && viewer == model.RoleAdmin {
			t.CounterpartyDisplayName = m.SenderName
		}
		if !m.Read && m.IsInboundFor(viewer) && !m.IsEcho() {
			t.UnreadCount++
		}
		t.Messages = append(t.Messages, *m)
	}

	for i := range threads {
		t := &threads[i]
		if t.CounterpartyDisplayName == "" {
			t.CounterpartyDisplayName = displayNameFallback(t, viewer, opts)
		}
		reverse(t.Messages)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		a, b := &threads[i], &threads[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		if a.CounterpartyID != b.CounterpartyID {
			return a.CounterpartyID < b.CounterpartyID
		}
		return a.ScopeID < b.ScopeID
	})
	return threads
}

// FindThread 按 key 查找线程
func FindThread(threads []model.Thread, key model.ThreadKey) *model.Thread {
	for i := range threads {
		if threads[i].Key() == key {
			return &threads[i]
		}
	}
	return nil
}

// UnreadTotal 所有线程未读数之和
func UnreadTotal(threads []model.Thread) int {
	total := 0
	for i := range threads {
		total += threads[i].UnreadCount
	}
	return total
}

// WithoutMessages 列表视图只保留线程摘要
func WithoutMessages(threads []model.Thread) []model.Thread {
	out := make([]model.Thread, len(threads))
	for i, t := range threads {
		t.Messages = nil
		out[i] = t
	}
	return out
}

// newerThan 本地回显视为最新；同类按时间倒序，相等时保持输入顺序
func newerThan(a, b *model.Message) bool {
	if a.IsEcho() != b.IsEcho() {
		return a.IsEcho()
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func counterpartyOf(m *model.Message, viewer model.Role) string {
	if viewer == model.RoleAdmin {
		return m.CustomerID
	}
	return model.SupportDeskID
}

func malformedReason(m *model.Message, viewer model.Role) string {
	switch {
	case m.ID == "" && m.LocalID == "":
		return "missing id"
	case m.ScopeID == "":
		return "missing scope id"
	case counterpartyOf(m, viewer) == "":
		return "missing counterparty id"
	case !m.SenderRole.Valid():
		return "invalid sender role"
	}
	return ""
}

func previewOf(m *model.Message, limit int) string {
	text := util.SingleLine(m.Body)
	if m.Kind != model.KindText && m.Kind != "" {
		if text == "" {
			text = "[" + string(m.Kind) + "]"
		} else {
			text = "[" + string(m.Kind) + "] " + text
		}
	}
	return util.TruncateRunes(text, limit)
}

func displayNameFallback(t *model.Thread, viewer model.Role, opts AggregateOptions) string {
	if name, ok := opts.CounterpartyNames[t.Key()]; ok && name != "" {
		return name
	}
	if viewer == model.RoleCustomer {
		return opts.SupportDeskName
	}
	return t.CounterpartyID
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// echoTime 本地回显使用本地时间占位
func echoTime(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}
