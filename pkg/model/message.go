package model

import (
	"sort"
	"time"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageSeen      MessageStatus = "seen"
)

func (s MessageStatus) Rank() int {
	switch s {
	case MessageDelivered:
		return 1
	case MessageSeen:
		return 2
	default:
		return 0
	}
}

// AdvancesTo reports whether moving from s to next goes forward.
func (s MessageStatus) AdvancesTo(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

type Message struct {
	ID             string        `json:"id,omitempty" bson:"_id,omitempty"`
	ConversationID string        `json:"conversation_id" bson:"conversation_id"`
	SenderID       string        `json:"sender_id" bson:"sender_id"`
	Content        string        `json:"content" bson:"content"`
	Status         MessageStatus `json:"status" bson:"status"`
	ClientRef      string        `json:"client_ref,omitempty" bson:"client_ref,omitempty"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`

	SenderName string `json:"sender_name,omitempty" bson:"-"`
	Pending    bool   `json:"pending,omitempty" bson:"-"`
}

func (m *Message) IsUnreadFor(viewerID string) bool {
	return !m.Pending && m.SenderID != viewerID && m.Status != MessageSeen
}

// MessageLess orders by created_at, then confirmed before provisional, then id.
func MessageLess(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Pending != b.Pending {
		return !a.Pending
	}
	return a.ID < b.ID
}

func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return MessageLess(&msgs[i], &msgs[j]) })
}

func CountUnread(msgs []Message, viewerID string) int {
	n := 0
	for i := range msgs {
		if msgs[i].IsUnreadFor(viewerID) {
			n++
		}
	}
	return n
}

func LatestMessage(msgs []Message) *Message {
	var last *Message
	for i := range msgs {
		if last == nil || MessageLess(last, &msgs[i]) {
			last = &msgs[i]
		}
	}
	if last == nil {
		return nil
	}
	m := *last
	return &m
}

type MessageCreate struct {
	Content   string `json:"content" validate:"required,max=4000"`
	ClientRef string `json:"client_ref,omitempty" validate:"omitempty,max=64"`
}
