// Package notify delivers user facing alerts. Delivery is best effort and
// never affects the outcome of the operation that triggered it.
package notify

import (
	"context"
	"time"

	"darna/pkg/logger"
)

type Kind string

const (
	KindBookingRequested Kind = "booking.requested"
	KindBookingAccepted  Kind = "booking.accepted"
	KindBookingRejected  Kind = "booking.rejected"
	KindCalendarPending  Kind = "booking.calendar_pending"
	KindMessageReceived  Kind = "message.received"
)

type Notification struct {
	Kind             Kind      `json:"kind"`
	RecipientID      string    `json:"recipient_id"`
	Title            string    `json:"title"`
	Body             string    `json:"body,omitempty"`
	BookingRequestID string    `json:"booking_request_id,omitempty"`
	PropertyID       string    `json:"property_id,omitempty"`
	ConversationID   string    `json:"conversation_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the log. Used when no broker is set up.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Component("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) {
	n.log.Info("Notification",
		"kind", note.Kind,
		"recipient_id", note.RecipientID,
		"title", note.Title,
		"booking_request_id", note.BookingRequestID,
		"conversation_id", note.ConversationID,
	)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}
