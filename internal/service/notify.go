package service

import (
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/util"
	"context"
	"fmt"
	log "log/slog"
	"strings"
)

// EmailSender 邮件发送能力
type EmailSender interface {
	Enabled() bool
	OpsMailbox() string
	Send(ctx context.Context, to, subject, body string) error
}

// MessageNotifier 新消息通知
type MessageNotifier interface {
	NotifyNewMessages(ctx context.Context, sender *model.Identity, scope *model.Scope, msgs []*model.Message)
}

// MailNotifier 客户发送时通知运营邮箱，管理员回复时通知客户
type MailNotifier struct {
	sender EmailSender
}

func NewMailNotifier(sender EmailSender) *MailNotifier {
	return &MailNotifier{sender: sender}
}

func (s *MailNotifier) NotifyNewMessages(ctx context.Context, sender *model.Identity, scope *model.Scope, msgs []*model.Message) {
	if s.sender == nil || !s.sender.Enabled() || sender == nil || scope == nil || len(msgs) == 0 {
		return
	}

	to := s.sender.OpsMailbox()
	if sender.IsAdmin() {
		to = scope.CustomerEmail
	}
	if to == "" {
		log.DebugContext(ctx, "notification recipient missing, skip", "scope_id", scope.ID, "sender", sender.ID)
		return
	}

	subject, body := renderNotification(sender, scope, msgs)
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		log.WarnContext(ctx, "send notification email failed", "scope_id", scope.ID, "err", err)
		return
	}
	log.InfoContext(ctx, "notification email sent", "scope_id", scope.ID, "count", len(msgs))
}

func renderNotification(sender *model.Identity, scope *model.Scope, msgs []*model.Message) (string, string) {
	title := scope.Title
	if title == "" {
		title = string(scope.Kind)
	}
	subject := fmt.Sprintf("[%s] 新消息：%s", title, sender.DisplayName)
	if sender.IsAdmin() {
		subject = fmt.Sprintf("[%s] 您收到了新的回复", title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) 发送了 %d 条消息：\n\n", sender.DisplayName, sender.Role, len(msgs))
	for _, m := range msgs {
		b.WriteString("- ")
		b.WriteString(previewOf(m, 200))
		b.WriteByte('\n')
		if m.Attachment != nil {
			b.WriteString("  ")
			b.WriteString(m.Attachment.URL)
			b.WriteByte('\n')
		}
	}
	if !sender.IsAdmin() {
		fmt.Fprintf(&b, "\n客户：%s <%s>\n", util.SingleLine(scope.CustomerName), scope.CustomerEmail)
	}
	return subject, b.String()
}
