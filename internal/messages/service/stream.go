package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"

	"github.com/google/uuid"
)

var ErrStreamClosed = errors.New("message stream is closed")

const pendingPrefix = "pending:"

// Stream is the live message log of one conversation for one viewer.
//
// Sending is optimistic: a provisional entry tagged with a fresh client
// reference is shown at once and replaced by whichever arrives first, the
// store's confirmation or the change feed echo. Both carry the same client
// reference so the message never shows twice.
type Stream struct {
	svc            MessageService
	conversationID string
	viewerID       string
	log            *logger.Logger

	mu        sync.Mutex
	msgs      []model.Message
	closed    bool
	sub       *realtime.Subscription
	nextID    int
	listeners map[int]func()
}

func NewStream(svc MessageService, conversationID, viewerID string, log *logger.Logger) *Stream {
	return &Stream{
		svc:            svc,
		conversationID: conversationID,
		viewerID:       viewerID,
		log:            log.Component("message_stream").With("conversation_id", conversationID, "viewer_id", viewerID),
		listeners:      make(map[int]func()),
	}
}

func (s *Stream) ConversationID() string {
	return s.conversationID
}

// Start subscribes to the conversation's messages and loads the history.
func (s *Stream) Start(ctx context.Context, hub *realtime.Hub) error {
	sub, err := hub.Subscribe(realtime.Filter{
		Table: realtime.TableMessages,
		Match: s.matches,
	}, s.ApplyChangeEvent)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return ErrStreamClosed
	}
	s.sub = sub
	s.mu.Unlock()

	return s.Reload(ctx)
}

// Reload merges a fresh copy of the history into the stream. Entries that
// moved further along while the load was in flight keep their newer state
// and provisional entries stay until confirmed.
func (s *Stream) Reload(ctx context.Context) error {
	if s.isClosed() {
		return ErrStreamClosed
	}

	loaded, err := s.svc.Load(ctx, s.conversationID, s.viewerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for _, m := range loaded {
		s.mergeLocked(m)
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notifyAll(listeners)
	return nil
}

// Send appends content optimistically and returns the confirmed message.
func (s *Stream) Send(ctx context.Context, content string) (*model.Message, error) {
	ref := uuid.New().String()
	provisional := model.Message{
		ID:             pendingPrefix + ref,
		ConversationID: s.conversationID,
		SenderID:       s.viewerID,
		Content:        content,
		Status:         model.MessageSent,
		ClientRef:      ref,
		CreatedAt:      time.Now().UTC(),
		Pending:        true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	s.insertLocked(provisional)
	listeners := s.listenersLocked()
	s.mu.Unlock()
	notifyAll(listeners)

	msg, err := s.svc.Append(ctx, s.conversationID, s.viewerID, &model.MessageCreate{
		Content:   content,
		ClientRef: ref,
	})

	s.mu.Lock()
	if err != nil {
		s.removeLocked(provisional.ID)
	} else if !s.closed {
		s.mergeLocked(*msg)
	}
	listeners = s.listenersLocked()
	s.mu.Unlock()
	notifyAll(listeners)

	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkSeen marks incoming messages as seen in the store and locally. Only
// messages already in the log when the call starts are advanced here; anything
// that arrives later waits for its own update event.
func (s *Stream) MarkSeen(ctx context.Context) error {
	s.mu.Lock()
	covered := make(map[string]struct{}, len(s.msgs))
	for _, m := range s.msgs {
		if !m.Pending && m.SenderID != s.viewerID && m.Status.AdvancesTo(model.MessageSeen) {
			covered[m.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	if _, err := s.svc.MarkSeen(ctx, s.conversationID, s.viewerID); err != nil {
		return err
	}

	s.mu.Lock()
	changed := false
	for i := range s.msgs {
		m := &s.msgs[i]
		if _, ok := covered[m.ID]; ok && m.Status.AdvancesTo(model.MessageSeen) {
			m.Status = model.MessageSeen
			changed = true
		}
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if changed {
		notifyAll(listeners)
	}
	return nil
}

func (s *Stream) matches(ev realtime.ChangeEvent) bool {
	if ev.Op == realtime.OpDelete {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.indexLocked(ev.Key) >= 0
	}
	var msg model.Message
	if err := ev.Decode(&msg); err != nil {
		return false
	}
	return msg.ConversationID == s.conversationID
}

// ApplyChangeEvent merges one message change. Status only moves forward.
func (s *Stream) ApplyChangeEvent(ctx context.Context, ev realtime.ChangeEvent) {
	switch ev.Op {
	case realtime.OpResync:
		if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrStreamClosed) && ctx.Err() == nil {
			s.log.Warn("Resync failed", "error", err)
		}
		return
	case realtime.OpDelete:
		s.mu.Lock()
		s.removeLocked(ev.Key)
		listeners := s.listenersLocked()
		s.mu.Unlock()
		notifyAll(listeners)
		return
	}

	var msg model.Message
	if err := ev.Decode(&msg); err != nil {
		s.log.Warn("Dropping undecodable message event", "event_id", ev.ID, "error", err)
		return
	}
	if msg.ID == "" {
		msg.ID = ev.Key
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mergeLocked(msg)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notifyAll(listeners)
}

// mergeLocked folds a confirmed message into the log. It replaces the
// provisional entry with the same client reference, and for a known id keeps
// the more advanced status.
func (s *Stream) mergeLocked(msg model.Message) {
	msg.Pending = false

	if msg.ClientRef != "" {
		s.removeLocked(pendingPrefix + msg.ClientRef)
	}

	if i := s.indexLocked(msg.ID); i >= 0 {
		cur := s.msgs[i]
		if !cur.Status.AdvancesTo(msg.Status) {
			msg.Status = cur.Status
		}
		if msg.SenderName == "" {
			msg.SenderName = cur.SenderName
		}
		s.msgs[i] = msg
		return
	}
	s.insertLocked(msg)
}

func (s *Stream) insertLocked(msg model.Message) {
	i := len(s.msgs)
	for i > 0 && model.MessageLess(&msg, &s.msgs[i-1]) {
		i--
	}
	s.msgs = append(s.msgs, model.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = msg
}

func (s *Stream) removeLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	}
}

func (s *Stream) indexLocked(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// Messages returns the log oldest first, provisional entries included.
func (s *Stream) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.msgs...)
}

func (s *Stream) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CountUnread(s.msgs, s.viewerID)
}

func (s *Stream) OnChange(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.listeners = map[int]func(){}
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) listenersLocked() []func() {
	out := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
