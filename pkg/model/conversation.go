package model

import "time"

type Conversation struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty"`
	ClientID      string    `json:"client_id" bson:"client_id"`
	OwnerID       string    `json:"owner_id" bson:"owner_id"`
	PropertyID    string    `json:"property_id,omitempty" bson:"property_id"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	LastMessageAt time.Time `json:"last_message_at" bson:"last_message_at"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ClientID == userID || c.OwnerID == userID)
}

func (c *Conversation) Counterpart(viewerID string) string {
	if c.ClientID == viewerID {
		return c.OwnerID
	}
	return c.ClientID
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	Conversation
	OtherUserID string          `json:"other_user_id"`
	OtherUser   *ProfileSummary `json:"other_user,omitempty"`
	LastMessage *Message        `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
}

// BuildConversationView derives the per-viewer fields from the raw message
// set of one conversation.
func BuildConversationView(conv Conversation, viewerID string, msgs []Message) ConversationView {
	view := ConversationView{
		Conversation: conv,
		OtherUserID:  conv.Counterpart(viewerID),
		UnreadCount:  CountUnread(msgs, viewerID),
	}
	if last := LatestMessage(msgs); last != nil {
		view.LastMessage = last
		if last.CreatedAt.After(view.LastMessageAt) {
			view.LastMessageAt = last.CreatedAt
		}
	}
	return view
}

type ConversationCreate struct {
	OwnerID    string `json:"owner_id" validate:"required,max=64"`
	PropertyID string `json:"property_id,omitempty" validate:"omitempty,max=64"`
}
