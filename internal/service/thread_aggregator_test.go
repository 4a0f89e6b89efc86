package service_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"Tradelink/internal/model"
	"Tradelink/internal/service"
)

var _ = Describe("AggregateThreads", func() {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	msg := func(id, scopeID, customerID string, role model.Role, body string, offset time.Duration) model.Message {
		sender := customerID
		if role == model.RoleAdmin {
			sender = "admin-1"
		}
		return model.Message{
			ID:         id,
			ScopeID:    scopeID,
			ScopeKind:  model.ScopeSupport,
			CustomerID: customerID,
			SenderID:   sender,
			SenderName: "Name " + sender,
			SenderRole: role,
			Body:       body,
			Kind:       model.KindText,
			CreatedAt:  base.Add(offset),
		}
	}

	Context("as an admin", func() {
		It("groups by scope and customer and orders threads by latest message", func() {
			messages := []model.Message{
				msg("1", "c1", "c1", model.RoleCustomer, "hello", 0),
				msg("2", "c2", "c2", model.RoleCustomer, "hi", 2*time.Minute),
				msg("3", "c1", "c1", model.RoleAdmin, "welcome", time.Minute),
				msg("4", "rfq-9", "c1", model.RoleCustomer, "quote?", 30*time.Second),
			}

			threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{})

			Expect(threads).To(HaveLen(3))
			Expect(threads[0].Key()).To(Equal(model.ThreadKey{ScopeID: "c2", CounterpartyID: "c2"}))
			Expect(threads[1].Key()).To(Equal(model.ThreadKey{ScopeID: "c1", CounterpartyID: "c1"}))
			Expect(threads[2].Key()).To(Equal(model.ThreadKey{ScopeID: "rfq-9", CounterpartyID: "c1"}))

			c1 := threads[1]
			Expect(c1.LastMessagePreview).To(Equal("welcome"))
			Expect(c1.LastMessageAt).To(Equal(base.Add(time.Minute)))
			Expect(c1.Messages).To(HaveLen(2))
			Expect(c1.Messages[0].ID).To(Equal("1"))
			Expect(c1.Messages[1].ID).To(Equal("3"))
			Expect(c1.CounterpartyDisplayName).To(Equal("Name c1"))
		})

		It("counts only unread inbound messages", func() {
			read := msg("2", "c1", "c1", model.RoleCustomer, "b", time.Second)
			read.Read = true
			messages := []model.Message{
				msg("1", "c1", "c1", model.RoleCustomer, "a", 0),
				read,
				msg("3", "c1", "c1", model.RoleAdmin, "c", 2*time.Second),
				msg("4", "c1", "c1", model.RoleCustomer, "d", 3*time.Second),
			}

			threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{})

			Expect(threads).To(HaveLen(1))
			Expect(threads[0].UnreadCount).To(Equal(2))
			Expect(service.UnreadTotal(threads)).To(Equal(2))
		})

		It("breaks ties on counterparty id then scope id", func() {
			messages := []model.Message{
				msg("1", "s-b", "c2", model.RoleCustomer, "x", 0),
				msg("2", "s-a", "c2", model.RoleCustomer, "y", 0),
				msg("3", "s-z", "c1", model.RoleCustomer, "z", 0),
			}

			threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{})

			Expect(threads).To(HaveLen(3))
			Expect(threads[0].Key()).To(Equal(model.ThreadKey{ScopeID: "s-z", CounterpartyID: "c1"}))
			Expect(threads[1].Key()).To(Equal(model.ThreadKey{ScopeID: "s-a", CounterpartyID: "c2"}))
			Expect(threads[2].Key()).To(Equal(model.ThreadKey{ScopeID: "s-b", CounterpartyID: "c2"}))
		})

		It("excludes malformed messages", func() {
			noScope := msg("2", "", "c1", model.RoleCustomer, "lost", time.Minute)
			noCustomer := msg("3", "c9", "", model.RoleCustomer, "lost", time.Minute)
			badRole := msg("4", "c1", "c1", model.Role("robot"), "lost", time.Minute)
			noID := msg("", "c1", "c1", model.RoleCustomer, "lost", time.Minute)
			messages := []model.Message{
				msg("1", "c1", "c1", model.RoleCustomer, "kept", 0),
				noScope, noCustomer, badRole, noID,
			}

			threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{})

			Expect(threads).To(HaveLen(1))
			Expect(threads[0].Messages).To(HaveLen(1))
			Expect(threads[0].LastMessagePreview).To(Equal("kept"))
		})

		It("falls back to configured counterparty names", func() {
			messages := []model.Message{msg("1", "c1", "c1", model.RoleAdmin, "ping", 0)}
			names := map[model.ThreadKey]string{{ScopeID: "c1", CounterpartyID: "c1"}: "Acme Ltd"}

			threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{CounterpartyNames: names})

			Expect(threads[0].CounterpartyDisplayName).To(Equal("Acme Ltd"))
		})
	})

	Context("as a customer", func() {
		It("uses the support desk as counterparty", func() {
			messages := []model.Message{
				msg("1", "c1", "c1", model.RoleAdmin, "hello", 0),
				msg("2", "rfq-1", "c1", model.RoleAdmin, "quote", time.Minute),
			}

			threads := service.AggregateThreads(messages, model.RoleCustomer, service.AggregateOptions{SupportDeskName: "Tradelink"})

			Expect(threads).To(HaveLen(2))
			for _, t := range threads {
				Expect(t.CounterpartyID).To(Equal(model.SupportDeskID))
				Expect(t.CounterpartyDisplayName).To(Equal("Tradelink"))
				Expect(t.UnreadCount).To(Equal(1))
			}
		})
	})

	It("truncates previews on rune boundaries and flattens newlines", func() {
		long := strings.Repeat("货", 100)
		messages := []model.Message{msg("1", "c1", "c1", model.RoleCustomer, "line1\nline2 "+long, 0)}

		threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{PreviewLength: 20})

		preview := threads[0].LastMessagePreview
		Expect(preview).NotTo(ContainSubstring("\n"))
		Expect(preview).To(HavePrefix("line1 line2"))
		Expect(preview).To(HaveSuffix("…"))
		Expect([]rune(preview)).To(HaveLen(21))
	})

	It("labels attachment previews with their kind", func() {
		m := msg("1", "c1", "c1", model.RoleCustomer, "photo.jpg", 0)
		m.Kind = model.KindImage
		m.Attachment = &model.Attachment{URL: "https://cdn.test/photo.jpg", FileName: "photo.jpg"}

		threads := service.AggregateThreads([]model.Message{m}, model.RoleAdmin, service.AggregateOptions{})

		Expect(threads[0].LastMessagePreview).To(Equal("[image] photo.jpg"))
	})

	It("places local echoes last and never counts them as unread", func() {
		stored := msg("1", "c1", "c1", model.RoleCustomer, "question", time.Hour)
		echoMsg := msg("", "c1", "c1", model.RoleAdmin, "answer", 0)
		echoMsg.LocalID = "local-1"
		echoMsg.Pending = true

		threads := service.AggregateThreads([]model.Message{echoMsg, stored}, model.RoleAdmin, service.AggregateOptions{})

		Expect(threads).To(HaveLen(1))
		Expect(threads[0].Messages[1].LocalID).To(Equal("local-1"))
		Expect(threads[0].LastMessagePreview).To(Equal("answer"))
		Expect(threads[0].UnreadCount).To(Equal(1))
	})

	It("returns nothing for an empty input", func() {
		Expect(service.AggregateThreads(nil, model.RoleAdmin, service.AggregateOptions{})).To(BeEmpty())
	})

	It("strips messages for list views", func() {
		messages := []model.Message{msg("1", "c1", "c1", model.RoleCustomer, "a", 0)}
		threads := service.AggregateThreads(messages, model.RoleAdmin, service.AggregateOptions{})

		Expect(service.WithoutMessages(threads)[0].Messages).To(BeNil())
		Expect(threads[0].Messages).To(HaveLen(1))
		Expect(service.FindThread(threads, model.ThreadKey{ScopeID: "c1", CounterpartyID: "c1"})).NotTo(BeNil())
		Expect(service.FindThread(threads, model.ThreadKey{ScopeID: "nope"})).To(BeNil())
	})
})
