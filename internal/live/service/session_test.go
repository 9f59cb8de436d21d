package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	liveerrors "darna/internal/live/errors"
	apperrors "darna/pkg/errors"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"
)

// ────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────

type fakeFeed struct {
	mu        sync.Mutex
	listeners map[int]func()
	next      int
	closed    bool
}

func (f *fakeFeed) OnChange(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func())
	}
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeFeed) fire() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeFeed) Close() {
	f.mu.Lock()
	f.closed = true
	f.listeners = nil
	f.mu.Unlock()
}

func (f *fakeFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeConversations struct {
	fakeFeed
	views []model.ConversationView
}

func (f *fakeConversations) Conversations() []model.ConversationView { return f.views }

type fakeUnread struct {
	conversations *fakeConversations
	total         int
}

func (u *fakeUnread) Count() int { return u.total }

func (u *fakeUnread) OnChange(fn func(int)) func() {
	return u.conversations.OnChange(func() { fn(u.total) })
}

type fakeBookings struct {
	fakeFeed
	owned []model.BookingRequest
}

func (f *fakeBookings) Owned() []model.BookingRequest     { return f.owned }
func (f *fakeBookings) Requested() []model.BookingRequest { return nil }

type fakeStream struct {
	fakeFeed
	id   string
	msgs []model.Message
}

func (f *fakeStream) ConversationID() string    { return f.id }
func (f *fakeStream) Messages() []model.Message { return f.msgs }
func (f *fakeStream) UnreadCount() int          { return 0 }

type fakeFactory struct {
	conversations *fakeConversations
	bookings      *fakeBookings
	streams       map[string]*fakeStream

	openStreamErr error
	viewers       []string
}

func newFakeFactory() *fakeFactory {
	conv := &fakeConversations{views: []model.ConversationView{{Conversation: model.Conversation{ID: "conv-1"}}}}
	return &fakeFactory{
		conversations: conv,
		bookings:      &fakeBookings{owned: []model.BookingRequest{{ID: "req-1"}}},
		streams:       make(map[string]*fakeStream),
	}
}

func (f *fakeFactory) OpenConversations(_ context.Context, viewerID string) (ConversationFeed, UnreadCounter, error) {
	f.viewers = append(f.viewers, viewerID)
	return f.conversations, &fakeUnread{conversations: f.conversations, total: 2}, nil
}

func (f *fakeFactory) OpenBookings(context.Context, string) (BookingFeed, error) {
	return f.bookings, nil
}

func (f *fakeFactory) OpenMessages(_ context.Context, conversationID, _ string) (MessageFeed, error) {
	if f.openStreamErr != nil {
		return nil, f.openStreamErr
	}
	st := &fakeStream{id: conversationID, msgs: []model.Message{{ID: "msg-1", ConversationID: conversationID}}}
	f.streams[conversationID] = st
	return st, nil
}

func openSession(t *testing.T, factory *fakeFactory, ids ...string) (*Session, *identity.Session) {
	t.Helper()
	provider := identity.NewSession(identity.Identity{UserID: "guest-1", Role: identity.RoleGuest})
	session := NewSession(factory, provider, logger.Discard())
	if err := session.Open(context.Background(), ids); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(session.Close)
	return session, provider
}

func names(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Name
	}
	return out
}

// ────────────────────────────────────────────────
// Open
// ────────────────────────────────────────────────

func TestOpen_DeliversInitialSnapshot(t *testing.T) {
	factory := newFakeFactory()
	session, _ := openSession(t, factory, "conv-1", "conv-1", " ")

	select {
	case <-session.Events():
	default:
		t.Fatal("expected a pending signal after Open")
	}

	events := session.Drain()
	want := []string{EventConversations, EventUnread, EventBookings, EventMessages}
	got := names(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	if p := events[1].Data.(UnreadPayload); p.TotalUnread != 2 {
		t.Errorf("unread = %d, want 2", p.TotalUnread)
	}
	if p := events[3].Data.(MessagesPayload); p.ConversationID != "conv-1" || len(p.Messages) != 1 {
		t.Errorf("unexpected messages payload %+v", p)
	}
	if len(factory.streams) != 1 {
		t.Errorf("duplicate ids should open one stream, got %d", len(factory.streams))
	}
	if len(factory.viewers) != 1 || factory.viewers[0] != "guest-1" {
		t.Errorf("components opened for %v", factory.viewers)
	}
}

func TestOpen_SignedOutIsUnauthorized(t *testing.T) {
	provider := identity.NewSession(identity.Identity{})
	session := NewSession(newFakeFactory(), provider, logger.Discard())

	err := session.Open(context.Background(), nil)
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	select {
	case <-session.Done():
	default:
		t.Error("failed Open should release the session")
	}
}

func TestOpen_FailureReleasesOpenedComponents(t *testing.T) {
	factory := newFakeFactory()
	factory.openStreamErr = apperrors.Forbidden("not a participant")

	provider := identity.NewSession(identity.Identity{UserID: "guest-1"})
	session := NewSession(factory, provider, logger.Discard())

	err := session.Open(context.Background(), []string{"conv-9"})
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	if !factory.conversations.isClosed() || !factory.bookings.isClosed() {
		t.Error("components opened before the failure must be closed")
	}
}

func TestOpen_TooManyStreams(t *testing.T) {
	ids := make([]string, MaxStreams+1)
	for i := range ids {
		ids[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	provider := identity.NewSession(identity.Identity{UserID: "guest-1"})
	session := NewSession(newFakeFactory(), provider, logger.Discard())

	if err := session.Open(context.Background(), ids); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

// ────────────────────────────────────────────────
// Changes
// ────────────────────────────────────────────────

func TestSession_CoalescesChanges(t *testing.T) {
	factory := newFakeFactory()
	session, _ := openSession(t, factory, "conv-1")
	session.Drain()

	factory.bookings.fire()
	factory.bookings.fire()
	factory.streams["conv-1"].fire()

	got := names(session.Drain())
	if len(got) != 2 || got[0] != EventBookings || got[1] != EventMessages {
		t.Fatalf("events = %v, want [bookings messages]", got)
	}
	if more := session.Drain(); len(more) != 0 {
		t.Errorf("second drain should be empty, got %v", names(more))
	}
}

// ────────────────────────────────────────────────
// Release
// ────────────────────────────────────────────────

func TestSession_EndsOnIdentityChange(t *testing.T) {
	tests := []struct {
		name   string
		change func(p *identity.Session)
	}{
		{"sign out", func(p *identity.Session) { p.SignOut() }},
		{"switch user", func(p *identity.Session) { p.SetUser(identity.Identity{UserID: "guest-2"}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := newFakeFactory()
			session, provider := openSession(t, factory, "conv-1")

			tt.change(provider)

			select {
			case <-session.Done():
			default:
				t.Fatal("session should end on identity change")
			}
			if !errors.Is(session.Err(), liveerrors.ErrIdentityChanged) {
				t.Errorf("Err() = %v", session.Err())
			}
			if !factory.conversations.isClosed() || !factory.bookings.isClosed() || !factory.streams["conv-1"].isClosed() {
				t.Error("all components should be released")
			}
		})
	}
}

func TestSession_SameUserRefreshKeepsSession(t *testing.T) {
	session, provider := openSession(t, newFakeFactory())

	provider.SetUser(identity.Identity{UserID: "guest-1", Role: identity.RoleOwner})

	select {
	case <-session.Done():
		t.Fatal("a role refresh for the same user must not end the session")
	default:
	}
}

func TestSession_CloseReleasesAndIgnoresLateChanges(t *testing.T) {
	factory := newFakeFactory()
	session, _ := openSession(t, factory, "conv-1")

	session.Close()
	session.Close()

	if session.Err() != nil {
		t.Errorf("plain Close should leave Err nil, got %v", session.Err())
	}
	if !factory.streams["conv-1"].isClosed() {
		t.Error("stream should be closed")
	}

	factory.conversations.fire()
	if events := session.Drain(); events != nil {
		t.Errorf("closed session should not produce events, got %v", names(events))
	}
}
