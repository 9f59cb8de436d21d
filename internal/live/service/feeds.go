package service

import (
	"context"

	bookingservice "darna/internal/bookings/service"
	conversationservice "darna/internal/conversations/service"
	messageservice "darna/internal/messages/service"
	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"
)

// ConversationFeed is satisfied by *conversationservice.Index.
type ConversationFeed interface {
	Conversations() []model.ConversationView
	OnChange(fn func()) func()
	Close()
}

// UnreadCounter is satisfied by *conversationservice.Aggregator.
type UnreadCounter interface {
	Count() int
	OnChange(fn func(total int)) func()
}

// BookingFeed is satisfied by *bookingservice.Tracker.
type BookingFeed interface {
	Owned() []model.BookingRequest
	Requested() []model.BookingRequest
	OnChange(fn func()) func()
	Close()
}

// MessageFeed is satisfied by *messageservice.Stream.
type MessageFeed interface {
	ConversationID() string
	Messages() []model.Message
	UnreadCount() int
	OnChange(fn func()) func()
	Close()
}

// Factory opens started live components for one viewer. Every returned feed
// holds hub subscriptions until closed.
type Factory interface {
	OpenConversations(ctx context.Context, viewerID string) (ConversationFeed, UnreadCounter, error)
	OpenBookings(ctx context.Context, viewerID string) (BookingFeed, error)
	OpenMessages(ctx context.Context, conversationID, viewerID string) (MessageFeed, error)
}

type hubFactory struct {
	hub           *realtime.Hub
	conversations conversationservice.ConversationService
	messages      messageservice.MessageService
	bookings      bookingservice.BookingRequestService
	log           *logger.Logger
}

func NewFactory(
	hub *realtime.Hub,
	conversations conversationservice.ConversationService,
	messages messageservice.MessageService,
	bookings bookingservice.BookingRequestService,
	log *logger.Logger,
) Factory {
	return &hubFactory{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		bookings:      bookings,
		log:           log,
	}
}

func (f *hubFactory) OpenConversations(ctx context.Context, viewerID string) (ConversationFeed, UnreadCounter, error) {
	index := conversationservice.NewIndex(f.conversations, viewerID, f.log)
	if err := index.Start(ctx, f.hub); err != nil {
		index.Close()
		return nil, nil, err
	}
	return index, conversationservice.NewAggregator(index), nil
}

func (f *hubFactory) OpenBookings(ctx context.Context, viewerID string) (BookingFeed, error) {
	tracker := bookingservice.NewTracker(f.bookings, viewerID, f.log)
	if err := tracker.Start(ctx, f.hub); err != nil {
		tracker.Close()
		return nil, err
	}
	return tracker, nil
}

func (f *hubFactory) OpenMessages(ctx context.Context, conversationID, viewerID string) (MessageFeed, error) {
	stream := messageservice.NewStream(f.messages, conversationID, viewerID, f.log)
	if err := stream.Start(ctx, f.hub); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}
