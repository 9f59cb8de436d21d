package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	liveerrors "darna/internal/live/errors"
	apperrors "darna/pkg/errors"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"
)

// MaxStreams caps the conversations one session may follow at once.
const MaxStreams = 20

const (
	EventConversations = "conversations"
	EventUnread        = "unread"
	EventBookings      = "bookings"
	EventMessages      = "messages"
)

const messagesTopicPrefix = EventMessages + ":"

type Event struct {
	Name string
	Data any
}

type UnreadPayload struct {
	TotalUnread int `json:"total_unread"`
}

type BookingsPayload struct {
	Owned     []model.BookingRequest `json:"owned"`
	Requested []model.BookingRequest `json:"requested"`
}

type MessagesPayload struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []model.Message `json:"messages"`
	UnreadCount    int             `json:"unread_count"`
}

// Session bundles the live components of one viewer connection: the
// conversation index with its unread total, the booking request lists and
// any open message streams.
//
// Changes are coalesced per topic. Events signals that something changed
// and Drain returns one snapshot per changed topic, so a slow consumer never
// blocks hub delivery. Everything is released on Close, on sign-out and when
// the provider switches to another user.
type Session struct {
	factory  Factory
	provider identity.Provider
	log      *logger.Logger

	mu            sync.Mutex
	viewer        identity.Identity
	conversations ConversationFeed
	unread        UnreadCounter
	bookings      BookingFeed
	streams       map[string]MessageFeed
	releases      []func()
	pending       map[string]bool
	order         []string
	closed        bool
	err           error

	signal chan struct{}
	done   chan struct{}
}

func NewSession(factory Factory, provider identity.Provider, log *logger.Logger) *Session {
	return &Session{
		factory:  factory,
		provider: provider,
		log:      log.Component("live_session"),
		streams:  make(map[string]MessageFeed),
		pending:  make(map[string]bool),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Open resolves the viewer and starts every component. On failure all
// components opened so far are released.
func (s *Session) Open(ctx context.Context, conversationIDs []string) error {
	ids := uniqueIDs(conversationIDs)
	if len(ids) > MaxStreams {
		return apperrors.Validation(
			fmt.Sprintf("A live session can follow at most %d conversations", MaxStreams),
			map[string]any{"conversations": len(ids)},
		)
	}

	if !s.attach(s.provider.OnAuthChange(s.authChanged)) {
		return liveerrors.ErrSessionClosed
	}

	viewer, err := s.provider.CurrentUser(ctx)
	if err != nil {
		s.Close()
		return apperrors.Unauthorized("Sign in to open a live session")
	}
	s.mu.Lock()
	s.viewer = viewer
	s.mu.Unlock()

	if err := s.open(ctx, viewer.UserID, ids); err != nil {
		s.Close()
		return err
	}

	s.log.Info("Live session opened", "viewer_id", viewer.UserID, "streams", len(ids))
	return nil
}

func (s *Session) open(ctx context.Context, viewerID string, ids []string) error {
	conversations, unread, err := s.factory.OpenConversations(ctx, viewerID)
	if err != nil {
		return err
	}
	if !s.attach(conversations.Close) {
		return liveerrors.ErrSessionClosed
	}
	s.mu.Lock()
	s.conversations, s.unread = conversations, unread
	s.mu.Unlock()
	s.attach(conversations.OnChange(func() { s.mark(EventConversations) }))
	s.attach(unread.OnChange(func(int) { s.mark(EventUnread) }))

	bookings, err := s.factory.OpenBookings(ctx, viewerID)
	if err != nil {
		return err
	}
	if !s.attach(bookings.Close) {
		return liveerrors.ErrSessionClosed
	}
	s.mu.Lock()
	s.bookings = bookings
	s.mu.Unlock()
	s.attach(bookings.OnChange(func() { s.mark(EventBookings) }))

	for _, id := range ids {
		stream, err := s.factory.OpenMessages(ctx, id, viewerID)
		if err != nil {
			return err
		}
		if !s.attach(stream.Close) {
			return liveerrors.ErrSessionClosed
		}
		s.mu.Lock()
		s.streams[id] = stream
		s.mu.Unlock()

		topic := messagesTopicPrefix + id
		s.attach(stream.OnChange(func() { s.mark(topic) }))
	}

	s.mark(EventConversations)
	s.mark(EventUnread)
	s.mark(EventBookings)
	for _, id := range ids {
		s.mark(messagesTopicPrefix + id)
	}
	return nil
}

// attach records a release func. When the session is already closed it runs
// release at once and reports false.
func (s *Session) attach(release func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		release()
		return false
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()
	return true
}

func (s *Session) authChanged(next identity.Identity) {
	s.mu.Lock()
	viewer := s.viewer
	s.mu.Unlock()

	if viewer.IsZero() || next.UserID == viewer.UserID {
		return
	}
	s.log.Info("Viewer identity changed, ending live session",
		"viewer_id", viewer.UserID,
		"signed_out", next.IsZero(),
	)
	s.end(liveerrors.ErrIdentityChanged)
}

func (s *Session) mark(topic string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.pending[topic] {
		s.pending[topic] = true
		s.order = append(s.order, topic)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Events fires when at least one topic changed since the last Drain.
func (s *Session) Events() <-chan struct{} {
	return s.signal
}

// Done is closed once the session is released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended. It is nil while the session is open and
// after a plain Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Drain returns one snapshot per changed topic, in the order the topics
// first changed.
func (s *Session) Drain() []Event {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	topics := s.order
	s.order = nil
	s.pending = make(map[string]bool)
	conversations, unread, bookings := s.conversations, s.unread, s.bookings
	streams := make(map[string]MessageFeed, len(s.streams))
	for id, st := range s.streams {
		streams[id] = st
	}
	s.mu.Unlock()

	events := make([]Event, 0, len(topics))
	for _, topic := range topics {
		switch {
		case topic == EventConversations && conversations != nil:
			events = append(events, Event{Name: EventConversations, Data: conversations.Conversations()})
		case topic == EventUnread && unread != nil:
			events = append(events, Event{Name: EventUnread, Data: UnreadPayload{TotalUnread: unread.Count()}})
		case topic == EventBookings && bookings != nil:
			events = append(events, Event{Name: EventBookings, Data: BookingsPayload{
				Owned:     bookings.Owned(),
				Requested: bookings.Requested(),
			}})
		case strings.HasPrefix(topic, messagesTopicPrefix):
			id := strings.TrimPrefix(topic, messagesTopicPrefix)
			if st, ok := streams[id]; ok {
				events = append(events, Event{Name: EventMessages, Data: MessagesPayload{
					ConversationID: id,
					Messages:       st.Messages(),
					UnreadCount:    st.UnreadCount(),
				}})
			}
		}
	}
	return events
}

func (s *Session) Close() {
	s.end(nil)
}

func (s *Session) end(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = reason
	releases := s.releases
	s.releases = nil
	s.streams = map[string]MessageFeed{}
	s.conversations, s.unread, s.bookings = nil, nil, nil
	close(s.done)
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
	s.log.Debug("Live session released", "released", len(releases))
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
